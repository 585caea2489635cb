package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a planning run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusFound     RunStatus = "found"
	RunStatusExhausted RunStatus = "exhausted"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// ArtifactKind names one of the diagnostic artifacts of a run.
type ArtifactKind string

const (
	// ArtifactProblem is the SMT-LIB2 text of the deciding problem.
	ArtifactProblem ArtifactKind = "problem"
	// ArtifactModel is the raw variable assignment as JSON.
	ArtifactModel ArtifactKind = "model"
	// ArtifactPlan is the decoded plan document as JSON.
	ArtifactPlan ArtifactKind = "plan"
)

// ContentType returns the MIME type artifacts of the kind are stored with.
func (k ArtifactKind) ContentType() string {
	if k == ArtifactProblem {
		return "application/smt-lib2"
	}
	return "application/json"
}

// FileName returns the file name artifacts of the kind are written under.
func (k ArtifactKind) FileName() string {
	if k == ArtifactProblem {
		return "problem.smt2"
	}
	return string(k) + ".json"
}

// Run represents one planning request
type Run struct {
	ID            string     `json:"id"`
	Required      string     `json:"required_capability"`
	Source        string     `json:"source"` // model globs or endpoint URL
	Backend       string     `json:"backend"`
	MaxHappenings int        `json:"max_happenings"`
	Status        RunStatus  `json:"status"`
	Horizon       int        `json:"horizon"`
	UnsatCore     string     `json:"unsat_core"` // JSON array of labels
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         *string    `json:"error,omitempty"`
	Metadata      string     `json:"metadata"` // JSON blob
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Attempt records one horizon of a run
type Attempt struct {
	RunID      string        `json:"run_id"`
	Happenings int           `json:"happenings"`
	Outcome    string        `json:"outcome"`
	Assertions int           `json:"assertions"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Type      string     `json:"type"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Artifact is one stored diagnostic artifact
type Artifact struct {
	RunID       string       `json:"run_id"`
	Kind        ArtifactKind `json:"kind"`
	ContentType string       `json:"content_type"`
	Content     []byte       `json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ArtifactSink receives the artifacts of a run. Put returns a location
// describing where the artifact went.
type ArtifactSink interface {
	Put(ctx context.Context, runID string, kind ArtifactKind, data []byte) (string, error)
}

// RunStore defines the run history persistence layer
type RunStore interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	FinishRun(ctx context.Context, id string, status RunStatus, horizon int, core []string, errMsg *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Attempt operations
	RecordAttempt(ctx context.Context, attempt *Attempt) error
	ListAttempts(ctx context.Context, runID string) ([]*Attempt, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Artifact operations
	ArtifactSink
	GetArtifact(ctx context.Context, runID string, kind ArtifactKind) (*Artifact, error)
	ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
