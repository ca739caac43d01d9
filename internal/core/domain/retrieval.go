package domain

import "fmt"

// SearchScope narrows a search round to one document and/or section subtree.
type SearchScope struct {
	DocumentID string `json:"document_id,omitempty"`
	Section    string `json:"section,omitempty"`
}

func (s SearchScope) HasDocumentFilter() bool {
	return s.DocumentID != ""
}

func (s SearchScope) Empty() bool {
	return s.DocumentID == "" && s.Section == ""
}

// Provenance tags for retrieved chunks.
const (
	ProvenanceStandard = "standard"
	ProvenanceHyde     = "hyde"
)

// ProvenanceSubQuery tags a chunk with the multihop round that produced it.
func ProvenanceSubQuery(index int) string {
	return fmt.Sprintf("subquery_%d", index)
}

// RetrievedChunk is one scored hit from a single search round.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	Section    string  `json:"section"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Provenance string  `json:"provenance"`
}

// FusedChunk is a deduplicated chunk after cross-round fusion. FusedScore
// orders the final result; BestScore keeps the highest raw retrieval score
// seen across rounds so that confidence checks compare on one scale.
type FusedChunk struct {
	ID          string   `json:"id"`
	DocumentID  string   `json:"document_id"`
	Section     string   `json:"section"`
	Text        string   `json:"text"`
	FusedScore  float64  `json:"fused_score"`
	BestScore   float64  `json:"best_score"`
	SourceCount int      `json:"source_count"`
	Provenance  []string `json:"provenance"`
}

type Strategy string

const (
	StrategyStandard     Strategy = "standard"
	StrategyMultihop     Strategy = "multihop"
	StrategyHyde         Strategy = "hyde"
	StrategyHydeFallback Strategy = "hyde_fallback"
)

// ComparisonPair maps the distinguishing entity of a comparison sub-query to
// its round index, for downstream structured answering.
type ComparisonPair struct {
	Entity     string `json:"entity"`
	QueryIndex int    `json:"query_index"`
}

type RetrievalStats struct {
	RoundsTotal     int              `json:"rounds_total"`
	RoundsFailed    int              `json:"rounds_failed"`
	UniqueChunks    int              `json:"unique_chunks"`
	MeanFusedScore  float64          `json:"mean_fused_score"`
	SourceCounts    map[int]int      `json:"source_counts,omitempty"`
	ComparisonPairs []ComparisonPair `json:"comparison_pairs,omitempty"`
}

type HydeMetadata struct {
	Requested         bool   `json:"requested"`
	Used              bool   `json:"used"`
	GenerationFailed  bool   `json:"generation_failed,omitempty"`
	FallbackTriggered bool   `json:"fallback_triggered,omitempty"`
	FallbackAccepted  bool   `json:"fallback_accepted,omitempty"`
	DocType           string `json:"doc_type,omitempty"`
	SkipReason        string `json:"skip_reason,omitempty"`
}

// RetrievalResult is the uniform output of every routing branch. Ownership
// passes to the caller; nothing in it is shared across queries.
type RetrievalResult struct {
	Chunks        []FusedChunk         `json:"chunks"`
	Strategy      Strategy             `json:"strategy_used"`
	Decomposition DecompositionSummary `json:"decomposition"`
	Hyde          HydeMetadata         `json:"hyde"`
	Stats         RetrievalStats       `json:"stats"`
}

// RetrievalOptions are per-request knobs; zero top-k values fall back to the
// router's configured defaults.
type RetrievalOptions struct {
	EnableMultihop bool `json:"enable_multihop"`
	EnableHyde     bool `json:"enable_hyde"`
	TopKInitial    int  `json:"top_k_initial"`
	TopKFinal      int  `json:"top_k_final"`
}

func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{
		EnableMultihop: true,
		EnableHyde:     true,
		TopKInitial:    20,
		TopKFinal:      8,
	}
}

// UsageSnapshot is a read-only view of the cross-query usage counters.
type UsageSnapshot struct {
	Queries           uint64  `json:"queries"`
	MultihopQueries   uint64  `json:"multihop_queries"`
	StandardQueries   uint64  `json:"standard_queries"`
	HydeActivated     uint64  `json:"hyde_activated"`
	FallbackTriggered uint64  `json:"fallback_triggered"`
	FallbackImproved  uint64  `json:"fallback_improved"`
	HydeRate          float64 `json:"hyde_rate"`
	FallbackRate      float64 `json:"fallback_rate"`
	ImprovementRate   float64 `json:"improvement_rate"`
}
