package community

import (
	"math"
	"sort"

	"github.com/agenthands/roundup/internal/core/model"
)

// LabelPropagation implements weighted label propagation.
type LabelPropagation struct {
	MaxIterations int
}

func NewLabelPropagation() *LabelPropagation {
	return &LabelPropagation{
		MaxIterations: 20,
	}
}

func (d *LabelPropagation) Name() string { return AlgorithmLabelPropagation }

func (d *LabelPropagation) Partition(nodes []string, edges []model.CandidateEdge) ([][]string, error) {
	g := newWGraph(nodes, edges)
	if g.size() == 0 {
		return nil, nil
	}

	// Each node starts with its own label.
	labels := make([]string, g.size())
	copy(labels, g.ids)

	for iter := 0; iter < d.MaxIterations; iter++ {
		changeCount := 0

		for u := 0; u < g.size(); u++ {
			if len(g.nbr[u]) == 0 {
				continue
			}

			// Sum neighbor label weights
			weights := make(map[string]float64)
			maxWeight := 0.0
			for x, v := range g.nbr[u] {
				label := labels[v]
				weights[label] += g.wt[u][x]
				if weights[label] > maxWeight {
					maxWeight = weights[label]
				}
			}

			var candidates []string
			for label, w := range weights {
				if math.Abs(w-maxWeight) <= gainEpsilon {
					candidates = append(candidates, label)
				}
			}

			// Ties go to the lexicographically largest label.
			sort.Strings(candidates)
			bestLabel := candidates[len(candidates)-1]

			if labels[u] != bestLabel {
				labels[u] = bestLabel
				changeCount++
			}
		}

		if changeCount == 0 {
			break
		}
	}

	index := make(map[string]int)
	ints := make([]int, len(labels))
	for i, l := range labels {
		if _, ok := index[l]; !ok {
			index[l] = len(index)
		}
		ints[i] = index[l]
	}
	final, _ := refine(g, ints)
	return groups(g.ids, final), nil
}
