package usecase

import (
	"sort"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

// BoostTable holds the multiplicative bonus applied to a chunk's best score
// by the number of independent sub-queries that retrieved it. Values are
// empirical tuning knobs, surfaced through configuration.
type BoostTable struct {
	Single float64
	Dual   float64
	Multi  float64
}

func DefaultBoostTable() BoostTable {
	return BoostTable{Single: 1.0, Dual: 1.3, Multi: 1.5}
}

// Normalize replaces unusable or decreasing entries with the defaults so the
// boost stays non-decreasing in source count.
func (b BoostTable) Normalize() BoostTable {
	def := DefaultBoostTable()
	if b.Single <= 0 {
		b.Single = def.Single
	}
	if b.Dual < b.Single {
		b.Dual = def.Dual
	}
	if b.Multi < b.Dual {
		b.Multi = def.Multi
	}
	if b.Dual < b.Single || b.Multi < b.Dual {
		return def
	}
	return b
}

func (b BoostTable) Factor(sourceCount int) float64 {
	switch {
	case sourceCount >= 3:
		return b.Multi
	case sourceCount == 2:
		return b.Dual
	default:
		return b.Single
	}
}

type fusionAccumulator struct {
	chunk      domain.RetrievedChunk
	bestScore  float64
	rrfScore   float64
	provenance map[string]struct{}
}

// fuseRounds deduplicates multihop rounds by chunk identity, scoring each
// chunk as max base score times the source-count boost. Rounds are indexed by
// sub-query; provenance records every contributing round.
func fuseRounds(rounds [][]domain.RetrievedChunk, boosts BoostTable) []domain.FusedChunk {
	boosts = boosts.Normalize()

	acc := make(map[string]*fusionAccumulator)
	for roundIdx, round := range rounds {
		tag := domain.ProvenanceSubQuery(roundIdx)
		for _, chunk := range round {
			entry, ok := acc[chunk.ID]
			if !ok {
				entry = &fusionAccumulator{chunk: chunk, provenance: make(map[string]struct{})}
				acc[chunk.ID] = entry
			}
			if chunk.Score > entry.bestScore {
				entry.bestScore = chunk.Score
				entry.chunk = chunk
			}
			entry.provenance[tag] = struct{}{}
		}
	}

	out := make([]domain.FusedChunk, 0, len(acc))
	for _, entry := range acc {
		sourceCount := len(entry.provenance)
		out = append(out, domain.FusedChunk{
			ID:          entry.chunk.ID,
			DocumentID:  entry.chunk.DocumentID,
			Section:     entry.chunk.Section,
			Text:        entry.chunk.Text,
			FusedScore:  entry.bestScore * boosts.Factor(sourceCount),
			BestScore:   entry.bestScore,
			SourceCount: sourceCount,
			Provenance:  sortedProvenance(entry.provenance),
		})
	}

	sortFusedChunks(out)
	return out
}

// fuseReciprocalRank combines the hypothetical-passage round and the
// original-query round by summing 1/(k+rank) contributions, 1-based rank.
// A chunk absent from a round contributes nothing for it.
func fuseReciprocalRank(rounds [][]domain.RetrievedChunk, kConst int) []domain.FusedChunk {
	if kConst <= 0 {
		kConst = 60
	}

	acc := make(map[string]*fusionAccumulator)
	for _, round := range rounds {
		for rank, chunk := range round {
			entry, ok := acc[chunk.ID]
			if !ok {
				entry = &fusionAccumulator{chunk: chunk, provenance: make(map[string]struct{})}
				acc[chunk.ID] = entry
			}
			entry.rrfScore += 1.0 / float64(kConst+rank+1)
			if chunk.Score > entry.bestScore {
				entry.bestScore = chunk.Score
				entry.chunk = chunk
			}
			if chunk.Provenance != "" {
				entry.provenance[chunk.Provenance] = struct{}{}
			}
		}
	}

	out := make([]domain.FusedChunk, 0, len(acc))
	for _, entry := range acc {
		out = append(out, domain.FusedChunk{
			ID:          entry.chunk.ID,
			DocumentID:  entry.chunk.DocumentID,
			Section:     entry.chunk.Section,
			Text:        entry.chunk.Text,
			FusedScore:  entry.rrfScore,
			BestScore:   entry.bestScore,
			SourceCount: len(entry.provenance),
			Provenance:  sortedProvenance(entry.provenance),
		})
	}

	sortFusedChunks(out)
	return out
}

// sortFusedChunks orders descending by fused score with a stable identity
// tie-break, so identical upstream responses always yield identical order.
func sortFusedChunks(chunks []domain.FusedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].FusedScore != chunks[j].FusedScore {
			return chunks[i].FusedScore > chunks[j].FusedScore
		}
		return chunks[i].ID < chunks[j].ID
	})
}

func sortedProvenance(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func trimChunks(chunks []domain.FusedChunk, limit int) []domain.FusedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func meanFusedScore(chunks []domain.FusedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.FusedScore
	}
	return sum / float64(len(chunks))
}

// meanTopScore averages the best raw retrieval scores of the leading chunks.
// Raw scores are used instead of fused scores so standard and RRF-fused
// results stay comparable for confidence checks.
func meanTopScore(chunks []domain.FusedChunk, top int) float64 {
	if len(chunks) == 0 {
		return 0
	}
	if top <= 0 || top > len(chunks) {
		top = len(chunks)
	}
	var sum float64
	for _, c := range chunks[:top] {
		sum += c.BestScore
	}
	return sum / float64(top)
}
