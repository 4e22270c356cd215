package community

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/roundup/internal/core/model"
)

func edge(src, dst string, w float64) model.CandidateEdge {
	return model.CandidateEdge{Src: src, Dst: dst, EmbedScore: w, Weight: w}
}

func twoTriangles(bridge bool) ([]string, []model.CandidateEdge) {
	nodes := []string{"1", "2", "3", "4", "5", "6"}
	edges := []model.CandidateEdge{
		edge("1", "2", 1), edge("2", "3", 1), edge("1", "3", 1),
		edge("4", "5", 1), edge("5", "6", 1), edge("4", "6", 1),
	}
	if bridge {
		edges = append(edges, edge("3", "4", 1))
	}
	return nodes, edges
}

func TestLPA_DisconnectedComponents(t *testing.T) {
	nodes, edges := twoTriangles(false)

	communities, err := NewLabelPropagation().Partition(nodes, edges)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}}, communities)
}

func TestLPA_BridgeNode(t *testing.T) {
	// 3 and 4 each have two strong neighbours against one bridge neighbour,
	// so the triangles stay apart.
	nodes, edges := twoTriangles(true)

	communities, err := NewLabelPropagation().Partition(nodes, edges)
	require.NoError(t, err)

	assert.Len(t, communities, 2)
}

func TestLPA_LargeClique(t *testing.T) {
	nodes := []string{"1", "2", "3", "4", "5"}
	var edges []model.CandidateEdge
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			edges = append(edges, edge(nodes[i], nodes[j], 1))
		}
	}

	communities, err := NewLabelPropagation().Partition(nodes, edges)
	require.NoError(t, err)

	require.Len(t, communities, 1)
	assert.Len(t, communities[0], 5)
}
