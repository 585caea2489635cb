package telemetry

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.RecordPlanStarted()
	m.RecordHorizonAttempt("unsat")
	m.RecordFactQuery("mangle", "hit", time.Millisecond)
	m.RecordAssertions("frame", 4)
	m.RecordPlanCompleted("found", time.Second)
	m.RecordError("permanent", "NOT_DECLARED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`test_horizon_attempts_total{outcome="unsat"} 1`,
		`test_fact_queries_total{dialect="mangle",outcome="hit"} 1`,
		`test_assertions_generated_total{generator="frame"} 4`,
		`test_plan_requests_total{status="found"} 1`,
		`test_errors_by_code_total{code="NOT_DECLARED"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	m.RecordPlanStarted()
	m.RecordUnsatCore(2)
	m.RecordModelReload(errors.New("boom"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("Expected 404 for disabled metrics, got %d", rec.Code)
	}
}

func TestEventPublisher_Async(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 8})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}

	var mu sync.Mutex
	var got []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}, FilterByRunID("run-1"))

	_ = ep.PublishPlanStarted("run-1", "urn:task", 2)
	_ = ep.PublishPlanFound("run-2", 1)
	_ = ep.PublishPlanExhausted("run-1", 2, []string{"init x"})

	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != EventTypePlanStarted || got[1] != EventTypePlanExhausted {
		t.Fatalf("Expected started and exhausted events for run-1, got %v", got)
	}
}

func TestEventPublisher_Nil(t *testing.T) {
	var ep *EventPublisher
	if err := ep.PublishPlanFailed("run", "boom"); err != nil {
		t.Fatalf("Expected nil publisher to drop events, got %v", err)
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Expected nil publisher shutdown to succeed, got %v", err)
	}
}

func TestStartOperation_WithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "plan.horizon")
	if ic.Span != nil {
		t.Fatal("Expected no span without telemetry in context")
	}
	ic.End(nil)

	tel := NewNop()
	ic = StartOperation(tel.WithContext(context.Background()), "plan.horizon", AttrHappenings.Int(2))
	if ic.Span == nil {
		t.Fatal("Expected span with telemetry in context")
	}
	ic.End(errors.New("unsat"))
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug").String() != "debug" {
		t.Fatalf("Expected debug level")
	}
	if ParseLevel("nonsense").String() != "info" {
		t.Fatalf("Expected unknown level to map to info")
	}
}
