package ports

import (
	"context"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

// CompletionService issues one prompt completion against the LLM backend.
// Used for query classification (structured output) and hypothetical-document
// generation (free text).
type CompletionService interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Embedder builds a fixed-dimension vector for query or passage text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs one scored search round against the chunk index,
// descending by score, with scope filtering applied server-side.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, limit int, scope domain.SearchScope) ([]domain.RetrievedChunk, error)
}
