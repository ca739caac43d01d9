package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
	"github.com/docuquery/retrieval-engine/internal/core/ports"
	"github.com/docuquery/retrieval-engine/internal/observability/metrics"
)

type RouterConfig struct {
	Service          string
	Defaults         domain.RetrievalOptions
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
}

type Router struct {
	retriever ports.DocumentRetriever
	usage     ports.UsageReporter
	metrics   *metrics.RetrievalMetrics
	cfg       RouterConfig
}

func NewRouter(
	retriever ports.DocumentRetriever,
	usage ports.UsageReporter,
	m *metrics.RetrievalMetrics,
	cfg RouterConfig,
) *Router {
	if cfg.Service == "" {
		cfg.Service = "retrieval-engine"
	}
	if cfg.Defaults.TopKInitial <= 0 || cfg.Defaults.TopKFinal <= 0 {
		cfg.Defaults = domain.DefaultRetrievalOptions()
	}
	return &Router{
		retriever: retriever,
		usage:     usage,
		metrics:   m,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/stats", rt.stats)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxConcurrent, rt.cfg.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// retrieveRequest uses pointers for the toggle fields so an absent field
// falls back to the configured default instead of false.
type retrieveRequest struct {
	Question       string `json:"question"`
	DocumentID     string `json:"document_id"`
	Section        string `json:"section"`
	EnableMultihop *bool  `json:"enable_multihop"`
	EnableHyde     *bool  `json:"enable_hyde"`
	TopKInitial    int    `json:"top_k_initial"`
	TopKFinal      int    `json:"top_k_final"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	opts := rt.cfg.Defaults
	if req.EnableMultihop != nil {
		opts.EnableMultihop = *req.EnableMultihop
	}
	if req.EnableHyde != nil {
		opts.EnableHyde = *req.EnableHyde
	}
	if req.TopKInitial > 0 {
		opts.TopKInitial = req.TopKInitial
	}
	if req.TopKFinal > 0 {
		opts.TopKFinal = req.TopKFinal
	}

	scope := domain.SearchScope{DocumentID: req.DocumentID, Section: req.Section}

	start := time.Now()
	result, err := rt.retriever.Retrieve(r.Context(), req.Question, scope, opts)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(rt.cfg.Service, result, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, rt.usage.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
