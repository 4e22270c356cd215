package community

import (
	"math"

	"github.com/agenthands/roundup/internal/core/model"
)

const gainEpsilon = 1e-12

// GreedyModularity is agglomerative modularity maximisation: start from
// singletons and repeatedly merge the pair of communities with the largest
// positive modularity gain.
type GreedyModularity struct{}

func NewGreedyModularity() *GreedyModularity {
	return &GreedyModularity{}
}

func (a *GreedyModularity) Name() string { return AlgorithmGreedy }

func (a *GreedyModularity) Partition(nodes []string, edges []model.CandidateEdge) ([][]string, error) {
	g := newWGraph(nodes, edges)
	n := g.size()
	if n == 0 {
		return nil, nil
	}
	if g.m == 0 {
		return singletons(g.ids), nil
	}

	between := make([]map[int]float64, n)
	tot := make([]float64, n)
	alive := make([]bool, n)
	label := make([]int, n)
	for i := 0; i < n; i++ {
		between[i] = make(map[int]float64, len(g.nbr[i]))
		for x, j := range g.nbr[i] {
			between[i][j] = g.wt[i][x]
		}
		tot[i] = g.deg[i]
		alive[i] = true
		label[i] = i
	}

	twoM2 := 2 * g.m * g.m
	for {
		bestI, bestJ := -1, -1
		bestGain := 0.0
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j, w := range between[i] {
				if j <= i {
					continue
				}
				gain := w/g.m - tot[i]*tot[j]/twoM2
				if gain <= gainEpsilon {
					continue
				}
				better := bestI == -1 || gain > bestGain+gainEpsilon
				tie := bestI != -1 && math.Abs(gain-bestGain) <= gainEpsilon &&
					(i < bestI || (i == bestI && j < bestJ))
				if better || tie {
					bestI, bestJ, bestGain = i, j, gain
				}
			}
		}
		if bestI == -1 {
			break
		}

		// Fold community bestJ into bestI.
		for k, w := range between[bestJ] {
			if k == bestI {
				continue
			}
			between[bestI][k] += w
			between[k][bestI] += w
			delete(between[k], bestJ)
		}
		delete(between[bestI], bestJ)
		between[bestJ] = nil
		tot[bestI] += tot[bestJ]
		alive[bestJ] = false
		for v := range label {
			if label[v] == bestJ {
				label[v] = bestI
			}
		}
	}

	return groups(g.ids, label), nil
}
