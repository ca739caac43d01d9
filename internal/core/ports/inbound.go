package ports

import (
	"context"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

// DocumentRetriever is the inbound contract for adaptive retrieval. It never
// fails on upstream errors; the worst case is an empty best-effort result.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, question string, scope domain.SearchScope, opts domain.RetrievalOptions) (*domain.RetrievalResult, error)
}

// UsageReporter exposes a read-only snapshot of cross-query usage counters.
type UsageReporter interface {
	Snapshot() domain.UsageSnapshot
}
