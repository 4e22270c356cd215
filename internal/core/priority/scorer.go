package priority

import "github.com/agenthands/roundup/internal/core/model"

// Scorer orders clusters for adjudication. Dense, high-similarity clusters
// of moderate size come first.
type Scorer struct {
	SimilarityWeight float64
	DensityWeight    float64
	SizeWeight       float64
}

func NewScorer() *Scorer {
	return &Scorer{
		SimilarityWeight: 0.6,
		DensityWeight:    0.3,
		SizeWeight:       0.1,
	}
}

// SizeScore is n/3 below 3 members, 1 for 3..10 and 10/n above 10.
func SizeScore(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n < 3:
		return float64(n) / 3.0
	case n <= 10:
		return 1.0
	default:
		return 10.0 / float64(n)
	}
}

func (s *Scorer) Score(avgSimilarity, density float64, size int) float64 {
	return s.SimilarityWeight*avgSimilarity + s.DensityWeight*density + s.SizeWeight*SizeScore(size)
}

// Apply sets PriorityScore on every cluster in place.
func (s *Scorer) Apply(clusters []model.Cluster) {
	for i := range clusters {
		c := &clusters[i]
		c.PriorityScore = s.Score(c.AvgSimilarity, c.Density, c.Size)
	}
}
