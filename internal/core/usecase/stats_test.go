package usecase

import (
	"sync"
	"testing"
)

func TestUsageStatsConcurrentIncrements(t *testing.T) {
	stats := NewUsageStats()

	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				stats.RecordQuery()
				stats.RecordHydeActivation()
				if i%2 == 0 {
					stats.RecordFallbackTrigger()
				}
				if i%4 == 0 {
					stats.RecordFallbackImproved()
				}
			}
		}()
	}
	wg.Wait()

	snap := stats.Snapshot()
	if snap.Queries != workers*perWorker {
		t.Fatalf("expected %d queries, got %d", workers*perWorker, snap.Queries)
	}
	if snap.HydeActivated != workers*perWorker {
		t.Fatalf("expected %d activations, got %d", workers*perWorker, snap.HydeActivated)
	}
	if snap.FallbackTriggered != workers*perWorker/2 {
		t.Fatalf("expected %d triggers, got %d", workers*perWorker/2, snap.FallbackTriggered)
	}
	if snap.HydeRate != 1.0 {
		t.Fatalf("expected hyde rate 1.0, got %v", snap.HydeRate)
	}
	if snap.ImprovementRate != 0.5 {
		t.Fatalf("expected improvement rate 0.5, got %v", snap.ImprovementRate)
	}
}

func TestUsageStatsEmptySnapshotHasNoRates(t *testing.T) {
	snap := NewUsageStats().Snapshot()
	if snap.Queries != 0 || snap.HydeRate != 0 || snap.FallbackRate != 0 || snap.ImprovementRate != 0 {
		t.Fatalf("zero-query snapshot must be all zeroes: %+v", snap)
	}
}
