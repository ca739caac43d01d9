package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

var errEmpty = errors.New("upstream failed")

type retrieverFake struct {
	lastQuestion string
	lastScope    domain.SearchScope
	lastOpts     domain.RetrievalOptions
	result       *domain.RetrievalResult
	err          error
}

func (f *retrieverFake) Retrieve(_ context.Context, question string, scope domain.SearchScope, opts domain.RetrievalOptions) (*domain.RetrievalResult, error) {
	f.lastQuestion = question
	f.lastScope = scope
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.RetrievalResult{Strategy: domain.StrategyStandard}, nil
}

type usageFake struct {
	snapshot domain.UsageSnapshot
}

func (f *usageFake) Snapshot() domain.UsageSnapshot { return f.snapshot }

func newTestRouter(fake *retrieverFake, usage *usageFake) http.Handler {
	if usage == nil {
		usage = &usageFake{}
	}
	return NewRouter(fake, usage, nil, RouterConfig{Service: "test"}).Handler()
}

func postRetrieve(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewBufferString(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRetrieveDefaultsToggles(t *testing.T) {
	fake := &retrieverFake{}
	handler := newTestRouter(fake, nil)

	res := postRetrieve(t, handler, `{"question":"what is a lien?"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	if !fake.lastOpts.EnableMultihop || !fake.lastOpts.EnableHyde {
		t.Fatalf("absent toggles must default on, got %+v", fake.lastOpts)
	}
	if fake.lastOpts.TopKInitial != 20 || fake.lastOpts.TopKFinal != 8 {
		t.Fatalf("unexpected top-k defaults: %+v", fake.lastOpts)
	}
}

func TestRetrieveExplicitFalseToggleIsHonored(t *testing.T) {
	fake := &retrieverFake{}
	handler := newTestRouter(fake, nil)

	res := postRetrieve(t, handler, `{"question":"q","enable_hyde":false,"top_k_final":4}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fake.lastOpts.EnableHyde {
		t.Fatalf("explicit false must disable hyde")
	}
	if !fake.lastOpts.EnableMultihop {
		t.Fatalf("untouched toggle must keep its default")
	}
	if fake.lastOpts.TopKFinal != 4 {
		t.Fatalf("expected top_k_final 4, got %d", fake.lastOpts.TopKFinal)
	}
}

func TestRetrievePassesScope(t *testing.T) {
	fake := &retrieverFake{}
	handler := newTestRouter(fake, nil)

	res := postRetrieve(t, handler, `{"question":"q","document_id":"d-1","section":"ch2"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if fake.lastScope.DocumentID != "d-1" || fake.lastScope.Section != "ch2" {
		t.Fatalf("unexpected scope: %+v", fake.lastScope)
	}
}

func TestRetrieveRejectsBlankQuestion(t *testing.T) {
	handler := newTestRouter(&retrieverFake{}, nil)

	res := postRetrieve(t, handler, `{"question":"   "}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveRejectsInvalidJSON(t *testing.T) {
	handler := newTestRouter(&retrieverFake{}, nil)

	res := postRetrieve(t, handler, `{"question":`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "retrieve", errEmpty), http.StatusBadRequest},
		{domain.WrapError(domain.ErrTemporary, "retrieve", errEmpty), http.StatusServiceUnavailable},
		{errEmpty, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := newTestRouter(&retrieverFake{err: tc.err}, nil)
		res := postRetrieve(t, handler, `{"question":"q"}`)
		if res.Code != tc.want {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
	}
}

func TestRetrieveResponseShape(t *testing.T) {
	fake := &retrieverFake{result: &domain.RetrievalResult{
		Chunks: []domain.FusedChunk{
			{ID: "c-1", FusedScore: 0.9, BestScore: 0.9, SourceCount: 1, Provenance: []string{"standard"}},
		},
		Strategy: domain.StrategyHyde,
		Hyde:     domain.HydeMetadata{Requested: true, Used: true, DocType: "legal"},
	}}
	handler := newTestRouter(fake, nil)

	res := postRetrieve(t, handler, `{"question":"what is a warranty?"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["strategy_used"] != "hyde" {
		t.Fatalf("expected strategy_used field, got %v", body)
	}
	chunks, _ := body["chunks"].([]any)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk in response, got %v", body["chunks"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	usage := &usageFake{snapshot: domain.UsageSnapshot{Queries: 7, HydeActivated: 2, HydeRate: 2.0 / 7.0}}
	handler := newTestRouter(&retrieverFake{}, usage)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var snap domain.UsageSnapshot
	if err := json.Unmarshal(res.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if snap.Queries != 7 || snap.HydeActivated != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&retrieverFake{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(&retrieverFake{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
