package facts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
)

const sparqlResponse = `{
  "head": {"vars": ["Prop", "Pos", "Flag", "Label"]},
  "results": {"bindings": [
    {
      "Prop": {"type": "uri", "value": "urn:t:depth_in"},
      "Pos": {"type": "literal", "datatype": "http://www.w3.org/2001/XMLSchema#integer", "value": "1"},
      "Flag": {"type": "literal", "datatype": "http://www.w3.org/2001/XMLSchema#boolean", "value": "true"},
      "Label": {"type": "literal", "value": "depth"}
    }
  ]}
}`

func TestSPARQLStore_Query(t *testing.T) {
	var gotBody, gotType, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		_, _ = io.WriteString(w, sparqlResponse)
	}))
	defer srv.Close()

	s := NewSPARQLStore(zerolog.New(nil).Level(zerolog.Disabled), srv.URL, time.Second)
	defer s.Close()

	rows, err := s.Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if gotBody != "SELECT * WHERE { ?s ?p ?o }" {
		t.Fatalf("Expected query in request body, got %q", gotBody)
	}
	if gotType != "application/sparql-query" {
		t.Fatalf("Expected sparql-query content type, got %q", gotType)
	}
	if gotAccept != "application/sparql-results+json" {
		t.Fatalf("Expected JSON results accept header, got %q", gotAccept)
	}

	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	tests := []struct {
		name string
		kind TermKind
		val  string
	}{
		{"Prop", TermIRI, "urn:t:depth_in"},
		{"Pos", TermNumber, "1"},
		{"Flag", TermBoolean, "true"},
		{"Label", TermString, "depth"},
	}
	for _, tt := range tests {
		if row[tt.name].Kind != tt.kind || row[tt.name].Value != tt.val {
			t.Errorf("Expected %s = %s(%s), got %v", tt.name, tt.kind, tt.val, row[tt.name])
		}
	}
	if s.Dialect() != DialectSPARQL {
		t.Fatalf("Expected sparql dialect, got %s", s.Dialect())
	}
}

func TestSPARQLStore_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		s := NewSPARQLStore(zerolog.New(nil).Level(zerolog.Disabled), srv.URL, time.Second)
		_, err := s.Query(context.Background(), "SELECT * WHERE { ?s ?p ?o }")
		srv.Close()

		if err == nil {
			t.Fatalf("Expected error for status %d", tt.status)
		}
		if engine.IsTransient(err) != tt.transient {
			t.Errorf("Status %d: expected transient=%v, got %v", tt.status, tt.transient, err)
		}
	}
}

func TestSPARQLStore_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewSPARQLStore(zerolog.New(nil).Level(zerolog.Disabled), url, time.Second)
	_, err := s.Query(context.Background(), "ASK {}")
	if !engine.IsRetryable(err) {
		t.Fatalf("Expected retryable error, got %v", err)
	}
}
