package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
	"github.com/docuquery/retrieval-engine/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}, nil)
}

func TestSearchMapsPayloadFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"score":0.91,"payload":{"chunk_id":"c-1","doc_id":"d-1","section":"ch2","text":"the clause"}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", testExecutor())
	chunks, err := client.Search(context.Background(), []float32{0.1, 0.2}, 5, domain.SearchScope{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	got := chunks[0]
	if got.ID != "c-1" || got.DocumentID != "d-1" || got.Section != "ch2" || got.Text != "the clause" || got.Score != 0.91 {
		t.Fatalf("unexpected chunk: %+v", got)
	}
}

func TestSearchBuildsScopeFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", testExecutor())
	_, err := client.Search(context.Background(), []float32{0.1}, 5, domain.SearchScope{DocumentID: "d-1", Section: "ch2"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	filter, _ := captured["filter"].(map[string]any)
	if filter == nil {
		t.Fatalf("expected filter in request body: %v", captured)
	}
	must, _ := filter["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("expected two must clauses, got %v", filter)
	}
}

func TestSearchOmitsFilterForEmptyScope(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", testExecutor())
	if _, err := client.Search(context.Background(), []float32{0.1}, 5, domain.SearchScope{}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, ok := captured["filter"]; ok {
		t.Fatalf("empty scope must not send a filter: %v", captured)
	}
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", testExecutor())
	if _, err := client.Search(context.Background(), []float32{0.1}, 5, domain.SearchScope{}); err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected retry, got %d calls", calls.Load())
	}
}

func TestSearchWrapsExhaustedRetriesTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "chunks", testExecutor())
	_, err := client.Search(context.Background(), []float32{0.1}, 5, domain.SearchScope{})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
}

func TestSearchRejectsEmptyVector(t *testing.T) {
	client := New("http://localhost:6333", "chunks", testExecutor())
	_, err := client.Search(context.Background(), nil, 5, domain.SearchScope{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
