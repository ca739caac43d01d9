package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
	"github.com/docuquery/retrieval-engine/internal/core/ports"
)

// Activation decision reasons, recorded on result metadata.
const (
	skipMultihopRoute    = "multihop_route"
	skipStructuralRef    = "structural_reference"
	skipDocumentFilter   = "document_filter"
	skipStructuralType   = "structural_type"
	skipNotApplicable    = "not_applicable"
	activateMarker       = "semantic_marker"
	activateGenericQuery = "generic_filterless"
)

type HydeConfig struct {
	KConst              int
	DocShare            float64
	QueryShare          float64
	FallbackMinScore    float64
	FallbackAcceptRatio float64
	// FallbackOverridesPolicy lets the confidence fallback run HyDE even for
	// queries the activation policy explicitly excluded (multihop routing,
	// structural references, document filters). Off by default: an explicit
	// exclusion wins over a weak standard result.
	FallbackOverridesPolicy bool
	MaxTokens               int
	GenerateTimeout         time.Duration
	SearchTimeout           time.Duration
	TopConsidered           int
}

func (c HydeConfig) normalize() HydeConfig {
	if c.KConst <= 0 {
		c.KConst = 60
	}
	if c.DocShare <= 0 || c.DocShare >= 1 {
		c.DocShare = 0.7
	}
	if c.QueryShare <= 0 || c.QueryShare >= 1 {
		c.QueryShare = 0.3
	}
	if c.FallbackMinScore <= 0 {
		c.FallbackMinScore = 0.30
	}
	if c.FallbackAcceptRatio <= 1 {
		c.FallbackAcceptRatio = 1.2
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 220
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 15 * time.Second
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 10 * time.Second
	}
	if c.TopConsidered <= 0 {
		c.TopConsidered = 5
	}
	return c
}

// HypotheticalRetriever bridges vocabulary gaps by generating a passage in
// the target document's register, then running a hybrid rank-fused search
// over the passage embedding and the original query embedding.
type HypotheticalRetriever struct {
	completion ports.CompletionService
	embedder   ports.Embedder
	searcher   ports.VectorSearcher
	registry   *PromptRegistry
	stats      *UsageStats
	cfg        HydeConfig
	logger     *slog.Logger
}

func NewHypotheticalRetriever(
	completion ports.CompletionService,
	embedder ports.Embedder,
	searcher ports.VectorSearcher,
	registry *PromptRegistry,
	stats *UsageStats,
	cfg HydeConfig,
	logger *slog.Logger,
) *HypotheticalRetriever {
	if registry == nil {
		registry = NewPromptRegistry()
	}
	if stats == nil {
		stats = NewUsageStats()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HypotheticalRetriever{
		completion: completion,
		embedder:   embedder,
		searcher:   searcher,
		registry:   registry,
		stats:      stats,
		cfg:        cfg.normalize(),
		logger:     logger,
	}
}

var hydeMarkers = []string{"what is", "what are", "what does", "define", "definition of", "meaning of", "how ", "explain", "describe", "why "}

// ShouldActivate applies the ordered activation rule table. Non-activation
// rules take precedence; the returned reason names the first matching rule.
func (h *HypotheticalRetriever) ShouldActivate(query string, dec domain.Decomposition, scope domain.SearchScope) (bool, string) {
	switch {
	case dec.RequiresMultihop:
		return false, skipMultihopRoute
	case structuralRefPattern.MatchString(query):
		return false, skipStructuralRef
	case scope.HasDocumentFilter():
		return false, skipDocumentFilter
	case dec.QueryType == domain.QueryStructural:
		return false, skipStructuralType
	}

	if dec.QueryType != domain.QuerySimpleSemantic {
		return false, skipNotApplicable
	}

	lower := strings.ToLower(query)
	for _, marker := range hydeMarkers {
		if strings.Contains(lower, marker) {
			return true, activateMarker
		}
	}
	if scope.Empty() {
		return true, activateGenericQuery
	}
	return false, skipNotApplicable
}

// explicitExclusion reports whether a skip reason is an explicit policy
// decision rather than a mere non-match. When FallbackOverridesPolicy is off,
// explicit exclusions also veto the confidence fallback.
func explicitExclusion(reason string) bool {
	switch reason {
	case skipMultihopRoute, skipStructuralRef, skipDocumentFilter, skipStructuralType:
		return true
	default:
		return false
	}
}

// FallbackEligible decides whether the confidence fallback may run HyDE for a
// query the activation policy declined.
func (h *HypotheticalRetriever) FallbackEligible(skipReason string) bool {
	if h.cfg.FallbackOverridesPolicy {
		return true
	}
	return !explicitExclusion(skipReason)
}

// Retrieve runs the full HyDE path: passage generation, hybrid search,
// reciprocal rank fusion. The candidate pool is split between the two rounds
// by the configured shares; the fused result is truncated to topKFinal.
// Generation or embedding failure disables HyDE for this query only and
// degrades to one standard round.
func (h *HypotheticalRetriever) Retrieve(ctx context.Context, query string, scope domain.SearchScope, topKInitial, topKFinal int) *domain.RetrievalResult {
	docType, template := h.registry.Resolve(scope.DocumentID, query)

	passage, err := h.generatePassage(ctx, template, query)
	if err != nil {
		h.logger.Warn("hyde_generation_failed", "error", err)
		result := h.RetrieveStandard(ctx, query, scope, topKInitial, topKFinal)
		result.Hyde.Requested = true
		result.Hyde.GenerationFailed = true
		result.Hyde.DocType = string(docType)
		return result
	}

	passageVector, err := h.embedder.EmbedQuery(ctx, passage)
	if err != nil {
		h.logger.Warn("hyde_embedding_failed", "error", err)
		result := h.RetrieveStandard(ctx, query, scope, topKInitial, topKFinal)
		result.Hyde.Requested = true
		result.Hyde.GenerationFailed = true
		result.Hyde.DocType = string(docType)
		return result
	}

	hydeRound := h.searchRound(ctx, passageVector, shareOf(topKInitial, h.cfg.DocShare), scope, domain.ProvenanceHyde)
	queryRound := h.queryRound(ctx, query, shareOf(topKInitial, h.cfg.QueryShare), scope)

	fused := fuseReciprocalRank([][]domain.RetrievedChunk{hydeRound, queryRound}, h.cfg.KConst)

	return &domain.RetrievalResult{
		Chunks:   trimChunks(fused, topKFinal),
		Strategy: domain.StrategyHyde,
		Hyde: domain.HydeMetadata{
			Requested: true,
			Used:      true,
			DocType:   string(docType),
		},
		Stats: domain.RetrievalStats{
			RoundsTotal:    2,
			UniqueChunks:   len(fused),
			MeanFusedScore: meanFusedScore(fused),
		},
	}
}

// RetrieveStandard runs one plain query-embedding round over the full
// candidate pool and truncates to topKFinal. Upstream failures are absorbed
// into an empty result; the caller still gets strategy=standard.
func (h *HypotheticalRetriever) RetrieveStandard(ctx context.Context, query string, scope domain.SearchScope, topKInitial, topKFinal int) *domain.RetrievalResult {
	chunks := h.queryRound(ctx, query, topKInitial, scope)

	fused := make([]domain.FusedChunk, 0, len(chunks))
	for _, c := range chunks {
		fused = append(fused, domain.FusedChunk{
			ID:          c.ID,
			DocumentID:  c.DocumentID,
			Section:     c.Section,
			Text:        c.Text,
			FusedScore:  c.Score,
			BestScore:   c.Score,
			SourceCount: 1,
			Provenance:  []string{domain.ProvenanceStandard},
		})
	}
	sortFusedChunks(fused)
	fused = trimChunks(fused, topKFinal)

	return &domain.RetrievalResult{
		Chunks:   fused,
		Strategy: domain.StrategyStandard,
		Stats: domain.RetrievalStats{
			RoundsTotal:    1,
			UniqueChunks:   len(fused),
			MeanFusedScore: meanFusedScore(fused),
		},
	}
}

// FallbackCheck evaluates the confidence-driven escalation after a standard
// attempt: HyDE is tried retroactively when the standard result looks weak,
// and its result is kept only when it is clearly better.
func (h *HypotheticalRetriever) FallbackCheck(ctx context.Context, query string, scope domain.SearchScope, topKInitial, topKFinal int, standard *domain.RetrievalResult) *domain.RetrievalResult {
	standardMean := meanTopScore(standard.Chunks, h.cfg.TopConsidered)
	if standardMean >= h.cfg.FallbackMinScore {
		return standard
	}

	h.stats.RecordFallbackTrigger()
	standard.Hyde.FallbackTriggered = true

	hydeResult := h.Retrieve(ctx, query, scope, topKInitial, topKFinal)
	if hydeResult.Hyde.GenerationFailed || len(hydeResult.Chunks) == 0 {
		return standard
	}

	hydeMean := meanTopScore(hydeResult.Chunks, h.cfg.TopConsidered)
	if hydeMean < h.cfg.FallbackAcceptRatio*standardMean {
		h.logger.Debug("hyde_fallback_rejected", "standard_mean", standardMean, "hyde_mean", hydeMean)
		return standard
	}

	h.stats.RecordFallbackImproved()
	hydeResult.Strategy = domain.StrategyHydeFallback
	hydeResult.Hyde.FallbackTriggered = true
	hydeResult.Hyde.FallbackAccepted = true
	return hydeResult
}

func (h *HypotheticalRetriever) generatePassage(ctx context.Context, template, query string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, h.cfg.GenerateTimeout)
	defer cancel()

	passage, err := h.completion.Complete(genCtx, fmt.Sprintf(template, query), h.cfg.MaxTokens)
	if err != nil {
		return "", err
	}
	passage = strings.TrimSpace(passage)
	if passage == "" {
		return "", fmt.Errorf("empty hypothetical passage")
	}
	return passage, nil
}

func (h *HypotheticalRetriever) queryRound(ctx context.Context, query string, limit int, scope domain.SearchScope) []domain.RetrievedChunk {
	vector, err := h.embedder.EmbedQuery(ctx, query)
	if err != nil {
		h.logger.Warn("query_embedding_failed", "error", err)
		return nil
	}
	return h.searchRound(ctx, vector, limit, scope, domain.ProvenanceStandard)
}

func (h *HypotheticalRetriever) searchRound(ctx context.Context, vector []float32, limit int, scope domain.SearchScope, provenance string) []domain.RetrievedChunk {
	if limit <= 0 {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, h.cfg.SearchTimeout)
	defer cancel()

	chunks, err := h.searcher.Search(searchCtx, vector, limit, scope)
	if err != nil {
		h.logger.Warn("search_round_failed", "provenance", provenance, "error", err)
		return nil
	}
	for i := range chunks {
		chunks[i].Provenance = provenance
	}
	return chunks
}

func shareOf(topK int, share float64) int {
	n := int(math.Ceil(float64(topK) * share))
	if n < 1 {
		n = 1
	}
	return n
}
