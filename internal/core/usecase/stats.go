package usecase

import (
	"sync/atomic"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

// UsageStats accumulates cross-query counters. It is the only state that
// survives a single retrieval; increments are atomic so concurrent queries
// never serialize on it. It is injected everywhere it is needed, never a
// package-level singleton.
type UsageStats struct {
	queries           atomic.Uint64
	multihopQueries   atomic.Uint64
	standardQueries   atomic.Uint64
	hydeActivated     atomic.Uint64
	fallbackTriggered atomic.Uint64
	fallbackImproved  atomic.Uint64
}

func NewUsageStats() *UsageStats {
	return &UsageStats{}
}

func (s *UsageStats) RecordQuery()            { s.queries.Add(1) }
func (s *UsageStats) RecordMultihop()         { s.multihopQueries.Add(1) }
func (s *UsageStats) RecordStandard()         { s.standardQueries.Add(1) }
func (s *UsageStats) RecordHydeActivation()   { s.hydeActivated.Add(1) }
func (s *UsageStats) RecordFallbackTrigger()  { s.fallbackTriggered.Add(1) }
func (s *UsageStats) RecordFallbackImproved() { s.fallbackImproved.Add(1) }

func (s *UsageStats) Snapshot() domain.UsageSnapshot {
	queries := s.queries.Load()
	hyde := s.hydeActivated.Load()
	triggered := s.fallbackTriggered.Load()
	improved := s.fallbackImproved.Load()

	snap := domain.UsageSnapshot{
		Queries:           queries,
		MultihopQueries:   s.multihopQueries.Load(),
		StandardQueries:   s.standardQueries.Load(),
		HydeActivated:     hyde,
		FallbackTriggered: triggered,
		FallbackImproved:  improved,
	}
	if queries > 0 {
		snap.HydeRate = float64(hyde) / float64(queries)
		snap.FallbackRate = float64(triggered) / float64(queries)
	}
	if triggered > 0 {
		snap.ImprovementRate = float64(improved) / float64(triggered)
	}
	return snap
}
