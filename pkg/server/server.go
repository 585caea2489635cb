package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/capplan/pkg/config"
	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/planner"
	"github.com/openfroyo/capplan/pkg/stores"
	"github.com/openfroyo/capplan/pkg/telemetry"
)

// maxBodySize limits the size of plan request bodies.
const maxBodySize = 1 << 20

// RemoteFunc returns a planner that reads facts from a SPARQL endpoint.
type RemoteFunc func(endpoint string) (*planner.Planner, error)

// Dependencies are the collaborators of a Server. Planner serves file mode
// requests and is required. Remote enables sparql-endpoint mode and Runs
// enables the run history endpoints.
type Dependencies struct {
	Planner   *planner.Planner
	Remote    RemoteFunc
	Runs      stores.RunStore
	Telemetry *telemetry.Telemetry
}

// PlanRequest is the body of POST /plan.
type PlanRequest struct {
	planner.Request

	// Mode selects the fact source: "file" (the default) or
	// "sparql-endpoint".
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=file sparql-endpoint"`

	// Endpoint is the SPARQL endpoint for sparql-endpoint mode.
	Endpoint string `json:"endpoint,omitempty" validate:"required_if=Mode sparql-endpoint,omitempty,url"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Class   string                 `json:"class,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RunResponse is the body of GET /runs/{id}.
type RunResponse struct {
	Run      *stores.Run       `json:"run"`
	Attempts []*stores.Attempt `json:"attempts"`
}

// Server is the HTTP front end of the planner.
type Server struct {
	cfg      config.ServerConfig
	deps     Dependencies
	logger   *telemetry.Logger
	validate *validator.Validate
	handler  http.Handler
}

// New creates a server.
func New(cfg config.ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Planner == nil {
		return nil, engine.NewPermanentError("server needs a planner", nil).WithCode(engine.ErrCodeValidation)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Telemetry.Logger.NewComponentLogger("server"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /plan", s.handlePlan)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", deps.Telemetry.Metrics.Handler())
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /runs/{id}/events", s.handleRunEvents)
	mux.HandleFunc("GET /runs/{id}/artifacts/{kind}", s.handleRunArtifact)
	s.handler = s.logRequests(mux)
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.WithField("address", ln.Addr().String()).Info("Server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	<-errCh
	s.logger.Info("Server stopped")
	return nil
}

// handlePlan handles POST /plan.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req PlanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  engine.ErrCodeValidation,
		})
		return
	}

	p := s.deps.Planner
	if req.Mode == config.ModeSPARQL {
		if s.deps.Remote == nil {
			s.writeError(w, http.StatusBadRequest, ErrorResponse{
				Error: "sparql-endpoint mode is not enabled",
				Code:  engine.ErrCodeValidation,
			})
			return
		}
		remote, err := s.deps.Remote(req.Endpoint)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		p = remote
	}

	ctx := s.deps.Telemetry.WithContext(r.Context())
	result, err := p.Plan(ctx, req.Request)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	status := http.StatusOK
	if result.Rejected() {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status": "ok",
		"solver": s.deps.Planner.Solver().Name(),
	}
	if s.deps.Runs != nil {
		if err := s.deps.Runs.HealthCheck(r.Context()); err != nil {
			body["status"] = "degraded"
			body["run_store"] = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["run_store"] = "ok"
	}
	s.writeJSON(w, http.StatusOK, body)
}

// handleListRuns handles GET /runs.
// Query parameters:
//   - limit: max results (default: 50, max: 1000)
//   - offset: results to skip (default: 0)
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.writeError(w, http.StatusNotFound, ErrorResponse{Error: "run store is not configured"})
		return
	}

	limit, err := intParam(r, "limit", 50, 1, 1000)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	offset, err := intParam(r, "offset", 0, 0, -1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	runs, err := s.deps.Runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []*stores.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handleGetRun handles GET /runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.writeError(w, http.StatusNotFound, ErrorResponse{Error: "run store is not configured"})
		return
	}

	id := r.PathValue("id")
	run, err := s.deps.Runs.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, ErrorResponse{Error: "run not found: " + id})
		return
	}
	attempts, err := s.deps.Runs.ListAttempts(r.Context(), id)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list attempts")
		s.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list attempts"})
		return
	}
	s.writeJSON(w, http.StatusOK, RunResponse{Run: run, Attempts: attempts})
}

// handleDeleteRun handles DELETE /runs/{id}.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.writeError(w, http.StatusNotFound, ErrorResponse{Error: "run store is not configured"})
		return
	}

	if err := s.deps.Runs.DeleteRun(r.Context(), r.PathValue("id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunEvents handles GET /runs/{id}/events.
// Query parameters:
//   - level: debug, info, warning or error
//   - limit: max results (default: 100, max: 1000)
//   - offset: results to skip (default: 0)
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.writeError(w, http.StatusNotFound, ErrorResponse{Error: "run store is not configured"})
		return
	}

	limit, err := intParam(r, "limit", 100, 1, 1000)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	offset, err := intParam(r, "offset", 0, 0, -1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	var level *stores.EventLevel
	switch l := stores.EventLevel(r.URL.Query().Get("level")); l {
	case "":
	case stores.EventLevelDebug, stores.EventLevelInfo, stores.EventLevelWarning, stores.EventLevelError:
		level = &l
	default:
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid level: " + string(l)})
		return
	}

	id := r.PathValue("id")
	if _, err := s.deps.Runs.GetRun(r.Context(), id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	events, err := s.deps.Runs.GetEvents(r.Context(), &id, level, limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get events")
		s.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to get events"})
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// handleRunArtifact handles GET /runs/{id}/artifacts/{kind}. The artifact
// is returned as stored, with its own content type.
func (s *Server) handleRunArtifact(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		s.writeError(w, http.StatusNotFound, ErrorResponse{Error: "run store is not configured"})
		return
	}

	kind := stores.ArtifactKind(r.PathValue("kind"))
	switch kind {
	case stores.ArtifactProblem, stores.ArtifactModel, stores.ArtifactPlan:
	default:
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid artifact kind: " + string(kind)})
		return
	}

	art, err := s.deps.Runs.GetArtifact(r.Context(), r.PathValue("id"), kind)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Content); err != nil {
		s.logger.WithError(err).Warn("Failed to write artifact")
	}
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || (hi >= 0 && v > hi) {
		if hi >= 0 {
			return 0, fmt.Errorf("invalid %s: must be %d-%d", name, lo, hi)
		}
		return 0, fmt.Errorf("invalid %s: must be at least %d", name, lo)
	}
	return v, nil
}

// statusFor maps a planning error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		return http.StatusInternalServerError
	}
	switch {
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case ee.Code == engine.ErrCodeValidation:
		return http.StatusBadRequest
	case ee.Class == engine.ErrorClassTransient:
		return http.StatusServiceUnavailable
	case ee.Class == engine.ErrorClassPermanent:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		resp.Class = string(ee.Class)
		resp.Code = ee.Code
		resp.Details = ee.Details
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Planning request failed")
	}
	s.writeError(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("Failed to write JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	s.writeJSON(w, status, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		zl := s.logger.Zerolog()
		zl.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
