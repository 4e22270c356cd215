package community

import (
	"sort"

	"github.com/agenthands/roundup/internal/core/model"
)

// wgraph is an index-based undirected weighted graph. Self loops hold the
// internal weight of aggregated nodes.
type wgraph struct {
	ids  []string
	nbr  [][]int
	wt   [][]float64
	self []float64
	deg  []float64
	m    float64
}

func newWGraph(nodes []string, edges []model.CandidateEdge) *wgraph {
	ids := append([]string(nil), nodes...)
	sort.Strings(ids)
	ids = dedupeSorted(ids)

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	adj := make([]map[int]float64, len(ids))
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	self := make([]float64, len(ids))
	for _, e := range edges {
		i, ok := index[e.Src]
		if !ok {
			continue
		}
		j, ok := index[e.Dst]
		if !ok {
			continue
		}
		if i == j {
			self[i] += e.Weight
			continue
		}
		adj[i][j] += e.Weight
		adj[j][i] += e.Weight
	}
	g := fromAdjacency(adj, self)
	g.ids = ids
	return g
}

func fromAdjacency(adj []map[int]float64, self []float64) *wgraph {
	n := len(adj)
	g := &wgraph{
		nbr:  make([][]int, n),
		wt:   make([][]float64, n),
		self: self,
		deg:  make([]float64, n),
	}
	total := 0.0
	for i, row := range adj {
		keys := make([]int, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		g.nbr[i] = keys
		g.wt[i] = make([]float64, len(keys))
		d := 2 * self[i]
		for x, k := range keys {
			g.wt[i][x] = row[k]
			d += row[k]
		}
		g.deg[i] = d
		total += d
	}
	g.m = total / 2
	return g
}

func (g *wgraph) size() int {
	return len(g.nbr)
}

// groups converts labels over the original node ids into sorted member lists.
func groups(ids []string, labels []int) [][]string {
	byLabel := make(map[int][]string)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], ids[i])
	}
	out := make([][]string, 0, len(byLabel))
	for _, members := range byLabel {
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func singletons(ids []string) [][]string {
	out := make([][]string, len(ids))
	for i, id := range ids {
		out[i] = []string{id}
	}
	return out
}

func dedupeSorted(s []string) []string {
	if len(s) == 0 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
