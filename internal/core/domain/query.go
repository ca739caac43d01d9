package domain

import "fmt"

// QueryType classifies a user question for routing purposes. The set is
// closed: classifier output outside of it is rejected and re-derived
// heuristically instead of being carried through as untyped data.
type QueryType string

const (
	QuerySimpleSemantic QueryType = "simple_semantic"
	QueryStructural     QueryType = "structural"
	QueryComparison     QueryType = "comparison"
	QueryProcedural     QueryType = "procedural"
	QueryConditional    QueryType = "conditional"
	QueryAggregation    QueryType = "aggregation"
	QueryReasoning      QueryType = "reasoning"
)

func ParseQueryType(raw string) (QueryType, error) {
	switch QueryType(raw) {
	case QuerySimpleSemantic, QueryStructural, QueryComparison,
		QueryProcedural, QueryConditional, QueryAggregation, QueryReasoning:
		return QueryType(raw), nil
	default:
		return "", fmt.Errorf("unknown query type %q", raw)
	}
}

// ComplexType reports whether this query type alone makes a query complex.
func (t QueryType) ComplexType() bool {
	switch t {
	case QueryComparison, QueryProcedural, QueryConditional, QueryReasoning:
		return true
	default:
		return false
	}
}

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// ClassifierSource identifies which classifier produced a decomposition.
type ClassifierSource string

const (
	SourceLLM       ClassifierSource = "llm"
	SourceHeuristic ClassifierSource = "heuristic"
)

// Decomposition is the per-query classification and sub-query split. It is
// built once per query and never persisted.
type Decomposition struct {
	QueryType        QueryType        `json:"query_type"`
	Complexity       Complexity       `json:"complexity"`
	RequiresMultihop bool             `json:"requires_multihop"`
	SubQueries       []string         `json:"sub_queries"`
	SearchStrategy   string           `json:"search_strategy"`
	Source           ClassifierSource `json:"source"`
}

// NewDecomposition derives complexity and the multihop requirement from the
// query type and sub-query split, keeping the invariant that multihop always
// comes with at least two sub-queries.
func NewDecomposition(queryType QueryType, subQueries []string, strategy string, source ClassifierSource) Decomposition {
	cleaned := make([]string, 0, len(subQueries))
	for _, sq := range subQueries {
		if sq != "" {
			cleaned = append(cleaned, sq)
		}
	}

	complexity := ComplexitySimple
	if queryType.ComplexType() || len(cleaned) > 1 {
		complexity = ComplexityComplex
	}

	return Decomposition{
		QueryType:        queryType,
		Complexity:       complexity,
		RequiresMultihop: complexity == ComplexityComplex && len(cleaned) > 1,
		SubQueries:       cleaned,
		SearchStrategy:   strategy,
		Source:           source,
	}
}

// DecompositionSummary is the routing metadata echoed on every result.
type DecompositionSummary struct {
	QueryType        QueryType        `json:"query_type"`
	Complexity       Complexity       `json:"complexity"`
	RequiresMultihop bool             `json:"requires_multihop"`
	SubQueryCount    int              `json:"sub_query_count"`
	Source           ClassifierSource `json:"source"`
}

func (d Decomposition) Summary() DecompositionSummary {
	return DecompositionSummary{
		QueryType:        d.QueryType,
		Complexity:       d.Complexity,
		RequiresMultihop: d.RequiresMultihop,
		SubQueryCount:    len(d.SubQueries),
		Source:           d.Source,
	}
}
