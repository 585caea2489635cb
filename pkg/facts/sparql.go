package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
)

const xsdBoolean = "http://www.w3.org/2001/XMLSchema#boolean"

var xsdNumeric = map[string]bool{
	"http://www.w3.org/2001/XMLSchema#decimal": true,
	"http://www.w3.org/2001/XMLSchema#integer": true,
	"http://www.w3.org/2001/XMLSchema#int":     true,
	"http://www.w3.org/2001/XMLSchema#long":    true,
	"http://www.w3.org/2001/XMLSchema#float":   true,
	"http://www.w3.org/2001/XMLSchema#double":  true,
}

// SPARQLStore queries a remote SPARQL 1.1 endpoint.
type SPARQLStore struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewSPARQLStore creates a store for the endpoint URL. A zero timeout means 30s.
func NewSPARQLStore(logger zerolog.Logger, endpoint string, timeout time.Duration) *SPARQLStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SPARQLStore{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "sparql-store").Str("endpoint", endpoint).Logger(),
	}
}

type sparqlResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]sparqlBinding `json:"bindings"`
	} `json:"results"`
}

type sparqlBinding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype"`
}

// Query posts a SELECT query and decodes the JSON result bindings.
func (s *SPARQLStore) Query(ctx context.Context, query string) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(query))
	if err != nil {
		return nil, engine.NewPermanentError("invalid SPARQL request", err).WithCode(engine.ErrCodeQueryFailed)
	}
	req.Header.Set("Content-Type", "application/sparql-query")
	req.Header.Set("Accept", "application/sparql-results+json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, engine.NewTransientError("SPARQL endpoint unreachable", err).
			WithCode(engine.ErrCodeQueryFailed).
			WithResource(s.endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		e := engine.NewPermanentError(fmt.Sprintf("SPARQL endpoint returned %s", resp.Status), nil)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			e = engine.NewTransientError(fmt.Sprintf("SPARQL endpoint returned %s", resp.Status), nil)
		}
		return nil, e.WithCode(engine.ErrCodeQueryFailed).
			WithResource(s.endpoint).
			WithDetail("body", string(body))
	}

	var results sparqlResults
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, engine.NewPermanentError("invalid SPARQL results document", err).
			WithCode(engine.ErrCodeQueryFailed).
			WithResource(s.endpoint)
	}

	rows := make([]Row, 0, len(results.Results.Bindings))
	for _, b := range results.Results.Bindings {
		row := make(Row, len(b))
		for name, v := range b {
			row[name] = termOfBinding(v)
		}
		rows = append(rows, row)
	}

	s.logger.Debug().
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("SPARQL query completed")
	return rows, nil
}

func termOfBinding(b sparqlBinding) Term {
	switch {
	case b.Type == "uri":
		return Term{Kind: TermIRI, Value: b.Value}
	case b.Datatype == xsdBoolean:
		return Term{Kind: TermBoolean, Value: b.Value}
	case xsdNumeric[b.Datatype]:
		return Term{Kind: TermNumber, Value: b.Value}
	}
	return Term{Kind: TermString, Value: b.Value}
}

// Dialect implements Store.
func (s *SPARQLStore) Dialect() Dialect {
	return DialectSPARQL
}

// Close implements Store.
func (s *SPARQLStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
