package community

import (
	"github.com/agenthands/roundup/internal/core/model"
)

// Leiden runs local moving, connectivity refinement and aggregation until
// no further aggregation is possible. Communities in the result are always
// connected.
type Leiden struct {
	MaxLevels int
	MaxPasses int
}

func NewLeiden() *Leiden {
	return &Leiden{MaxLevels: 10, MaxPasses: 50}
}

func (a *Leiden) Name() string { return AlgorithmLeiden }

func (a *Leiden) Partition(nodes []string, edges []model.CandidateEdge) ([][]string, error) {
	orig := newWGraph(nodes, edges)
	n := orig.size()
	if n == 0 {
		return nil, nil
	}
	if orig.m == 0 {
		return singletons(orig.ids), nil
	}

	g := orig
	comm := identity(n)
	mapping := identity(n)

	for level := 0; level < a.MaxLevels; level++ {
		comm = a.localMove(g, comm)
		if distinct(comm) == g.size() {
			break
		}
		refined, count := refine(g, comm)
		if count == g.size() {
			break
		}

		next := make([]int, count)
		for v, c := range comm {
			next[refined[v]] = c
		}
		for o := range mapping {
			mapping[o] = refined[mapping[o]]
		}
		g = aggregate(g, refined, count)
		comm = next
	}

	labels := make([]int, n)
	for o := range labels {
		labels[o] = comm[mapping[o]]
	}
	final, _ := refine(orig, labels)
	return groups(orig.ids, final), nil
}

// localMove greedily moves single nodes to the neighbouring community with
// the best modularity gain until a pass makes no move.
func (a *Leiden) localMove(g *wgraph, comm []int) []int {
	comm = append([]int(nil), comm...)
	tot := make(map[int]float64)
	for v, c := range comm {
		tot[c] += g.deg[v]
	}
	twoM2 := 2 * g.m * g.m

	for pass := 0; pass < a.MaxPasses; pass++ {
		moved := false
		for v := 0; v < g.size(); v++ {
			cur := comm[v]
			tot[cur] -= g.deg[v]

			kin := make(map[int]float64)
			var order []int
			for x, u := range g.nbr[v] {
				c := comm[u]
				if _, ok := kin[c]; !ok {
					order = append(order, c)
				}
				kin[c] += g.wt[v][x]
			}

			best := cur
			bestGain := kin[cur]/g.m - tot[cur]*g.deg[v]/twoM2
			for _, c := range order {
				gain := kin[c]/g.m - tot[c]*g.deg[v]/twoM2
				if gain > bestGain+gainEpsilon {
					best, bestGain = c, gain
				}
			}

			tot[best] += g.deg[v]
			if best != cur {
				comm[v] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return comm
}

// refine splits every community into its connected components and numbers
// them 0..count-1 in node order.
func refine(g *wgraph, comm []int) ([]int, int) {
	refined := make([]int, g.size())
	for i := range refined {
		refined[i] = -1
	}
	count := 0
	for s := 0; s < g.size(); s++ {
		if refined[s] != -1 {
			continue
		}
		refined[s] = count
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, u := range g.nbr[v] {
				if refined[u] == -1 && comm[u] == comm[s] {
					refined[u] = count
					queue = append(queue, u)
				}
			}
		}
		count++
	}
	return refined, count
}

// aggregate collapses each refined community into one node.
func aggregate(g *wgraph, refined []int, count int) *wgraph {
	adj := make([]map[int]float64, count)
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	self := make([]float64, count)
	for v := 0; v < g.size(); v++ {
		a := refined[v]
		self[a] += g.self[v]
		for x, u := range g.nbr[v] {
			b := refined[u]
			if a == b {
				// Each internal edge is visited from both ends.
				self[a] += g.wt[v][x] / 2
				continue
			}
			adj[a][b] += g.wt[v][x]
		}
	}
	return fromAdjacency(adj, self)
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func distinct(labels []int) int {
	seen := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}
