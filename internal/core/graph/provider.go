package graph

import (
	"context"

	"github.com/agenthands/roundup/internal/core/model"
)

// Neighbor is one nearest-neighbor hit returned by a similarity provider.
type Neighbor struct {
	ID    string
	Score float64
}

// SimilarityProvider supplies nearest neighbors from an external vector index.
type SimilarityProvider interface {
	Neighbors(ctx context.Context, item model.Item, k int) ([]Neighbor, error)
	ModelVersion() string
	// FreshnessMarker changes whenever the underlying index is rebuilt.
	FreshnessMarker(ctx context.Context) (string, error)
}

// Reranker scores documents against a query, one score per document in [0,1].
type Reranker interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
	Name() string
}
