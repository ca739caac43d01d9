package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
	"github.com/docuquery/retrieval-engine/internal/core/ports"
)

const (
	strategySemantic   = "semantic"
	strategyStructural = "structural_lookup"
	strategyMultihop   = "fused_multihop"
)

// classifier is the single capability behind query analysis; the LLM-backed
// and heuristic implementations are selected by availability, not by flags at
// call sites.
type classifier interface {
	classify(ctx context.Context, query string) (domain.Decomposition, error)
}

type AnalyzerConfig struct {
	ClassifyTimeout time.Duration
	MaxTokens       int
}

func (c AnalyzerConfig) normalize() AnalyzerConfig {
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 8 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 300
	}
	return c
}

// QueryAnalyzer classifies a query and decomposes it into sub-queries. Any
// completion failure, timeout, or unparsable output falls through to the
// deterministic heuristic classifier, so analysis itself cannot fail.
type QueryAnalyzer struct {
	llm       classifier
	heuristic classifier
	logger    *slog.Logger
}

func NewQueryAnalyzer(completion ports.CompletionService, cfg AnalyzerConfig, logger *slog.Logger) *QueryAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &QueryAnalyzer{
		heuristic: &heuristicClassifier{},
		logger:    logger,
	}
	if completion != nil {
		a.llm = &llmClassifier{completion: completion, cfg: cfg.normalize()}
	}
	return a
}

func (a *QueryAnalyzer) Analyze(ctx context.Context, query string, _ domain.SearchScope) domain.Decomposition {
	query = strings.TrimSpace(query)

	if a.llm != nil {
		dec, err := a.llm.classify(ctx, query)
		if err == nil {
			return dec
		}
		a.logger.Warn("query_classification_fallback", "error", err)
	}

	dec, _ := a.heuristic.classify(ctx, query)
	return dec
}

type llmClassifier struct {
	completion ports.CompletionService
	cfg        AnalyzerConfig
}

type classificationPayload struct {
	QueryType      string   `json:"query_type"`
	SubQueries     []string `json:"sub_queries"`
	SearchStrategy string   `json:"search_strategy"`
}

func (c *llmClassifier) classify(ctx context.Context, query string) (domain.Decomposition, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.ClassifyTimeout)
	defer cancel()

	raw, err := c.completion.Complete(callCtx, buildClassificationPrompt(query), c.cfg.MaxTokens)
	if err != nil {
		return domain.Decomposition{}, fmt.Errorf("classification call: %w", err)
	}

	var payload classificationPayload
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return domain.Decomposition{}, fmt.Errorf("parse classification json: %w", err)
	}

	queryType, err := domain.ParseQueryType(strings.TrimSpace(payload.QueryType))
	if err != nil {
		return domain.Decomposition{}, fmt.Errorf("classification payload: %w", err)
	}

	subQueries := make([]string, 0, len(payload.SubQueries))
	for _, sq := range payload.SubQueries {
		if sq = strings.TrimSpace(sq); sq != "" {
			subQueries = append(subQueries, sq)
		}
	}
	if len(subQueries) == 0 {
		subQueries = []string{query}
	}

	strategy := strings.TrimSpace(payload.SearchStrategy)
	if strategy == "" {
		strategy = strategyForType(queryType, subQueries)
	}

	return domain.NewDecomposition(queryType, subQueries, strategy, domain.SourceLLM), nil
}

func buildClassificationPrompt(query string) string {
	return `You classify questions about large structured documents.
Return a strict JSON object with keys:
query_type (one of: simple_semantic, structural, comparison, procedural, conditional, aggregation, reasoning),
sub_queries (array of strings; split the question only when answering needs independent searches),
search_strategy (string).
No markdown, no extra keys.

Question:
` + query
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

var structuralRefPattern = regexp.MustCompile(`(?i)\b(article|chapter|section|clause|annex|appendix|part)\s+([0-9]+|[ivxlc]+)\b|§\s*[0-9]+`)

type heuristicClassifier struct{}

// classify assigns a query type from lexical cues and performs a minimal
// sub-query split. This path is deterministic and cannot fail.
func (h *heuristicClassifier) classify(_ context.Context, query string) (domain.Decomposition, error) {
	lower := strings.ToLower(query)

	var queryType domain.QueryType
	var subQueries []string

	switch {
	case structuralRefPattern.MatchString(query):
		queryType = domain.QueryStructural
		subQueries = []string{query}
	case containsAny(lower, comparisonCues):
		queryType = domain.QueryComparison
		subQueries = splitComparison(query)
	case containsAny(lower, conditionalCues):
		queryType = domain.QueryConditional
		subQueries = splitConditions(query)
	case containsAny(lower, proceduralCues):
		queryType = domain.QueryProcedural
		subQueries = []string{query}
	case containsAny(lower, aggregationCues):
		queryType = domain.QueryAggregation
		subQueries = []string{query}
	case strings.HasPrefix(lower, "why"):
		queryType = domain.QueryReasoning
		subQueries = []string{query}
	default:
		queryType = domain.QuerySimpleSemantic
		subQueries = []string{query}
	}

	return domain.NewDecomposition(queryType, subQueries, strategyForType(queryType, subQueries), domain.SourceHeuristic), nil
}

var (
	comparisonCues  = []string{"compare", " versus ", " vs ", " vs. ", "difference between", "differ from", "distinguish"}
	conditionalCues = []string{" if ", "when ", " unless ", "in case", "provided that", "under what conditions"}
	proceduralCues  = []string{"how do", "how to", "how can", "steps", "procedure", "process for"}
	aggregationCues = []string{"how many", "how much", "total", "count of", "average", "sum of"}
)

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

// splitComparison extracts the two compared entities when the phrasing makes
// them separable; otherwise the query stays whole.
func splitComparison(query string) []string {
	lower := strings.ToLower(query)

	if idx := strings.Index(lower, "difference between "); idx >= 0 {
		rest := query[idx+len("difference between "):]
		if parts := splitPair(rest); parts != nil {
			return parts
		}
	}
	for _, sep := range []string{" versus ", " vs. ", " vs "} {
		if idx := strings.Index(lower, sep); idx >= 0 {
			left := strings.TrimSpace(query[:idx])
			right := strings.TrimSpace(query[idx+len(sep):])
			if left != "" && right != "" {
				return []string{left, strings.TrimRight(right, "?.!")}
			}
		}
	}
	if idx := strings.Index(lower, "compare "); idx >= 0 {
		rest := query[idx+len("compare "):]
		if parts := splitPair(rest); parts != nil {
			return parts
		}
	}
	return []string{query}
}

func splitPair(rest string) []string {
	lower := strings.ToLower(rest)
	idx := strings.Index(lower, " and ")
	if idx < 0 {
		return nil
	}
	left := strings.TrimSpace(rest[:idx])
	right := strings.TrimSpace(strings.TrimRight(rest[idx+len(" and "):], "?.!"))
	if left == "" || right == "" {
		return nil
	}
	return []string{left, right}
}

// splitConditions splits a conditional question into one sub-query per
// condition clause. Every condition must be searched regardless of the
// others, so no clause is dropped.
func splitConditions(query string) []string {
	trimmed := strings.TrimRight(query, "?.!")
	parts := regexp.MustCompile(`(?i)\s*(?:;|,\s*and\s+|\s+and\s+if\s+|\s+and\s+when\s+)\s*`).Split(trimmed, -1)

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); len(p) >= 8 {
			out = append(out, p)
		}
	}
	if len(out) < 2 {
		return []string{query}
	}
	return out
}

func strategyForType(queryType domain.QueryType, subQueries []string) string {
	switch {
	case queryType == domain.QueryStructural:
		return strategyStructural
	case len(subQueries) > 1:
		return strategyMultihop
	default:
		return strategySemantic
	}
}
