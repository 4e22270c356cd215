package model

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// WeightedEdge is serialized as a [u, v, weight] triple.
type WeightedEdge struct {
	U      string
	V      string
	Weight float64
}

func (e WeightedEdge) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.U, e.V, e.Weight})
}

func (e *WeightedEdge) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("edge must have 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.U); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &e.V); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &e.Weight)
}

// Cluster is one community of a round's partition. IDs are re-issued every
// round and only item ids are stable across rounds.
type Cluster struct {
	ID            string         `json:"id"`
	Category      string         `json:"category"`
	Members       []string       `json:"members"`
	AvgSimilarity float64        `json:"avg_similarity"`
	Density       float64        `json:"density"`
	Size          int            `json:"size"`
	PriorityScore float64        `json:"priority_score"`
	Oversized     bool           `json:"oversized"`
	Edges         []WeightedEdge `json:"edges"`
}

type ExportMetadata struct {
	TotalItems              int     `json:"total_items"`
	GraphEdges              int     `json:"graph_edges"`
	MinThreshold            float64 `json:"min_threshold"`
	Algorithm               string  `json:"algorithm"`
	PerCategory             bool    `json:"per_category"`
	SkippedSmallCommunities int     `json:"skipped_small_communities"`
	OversizedCommunities    int     `json:"oversized_communities"`
	Round                   int     `json:"round,omitempty"`
}

// Export is the cluster export document written once per round.
type Export struct {
	Communities []Cluster      `json:"communities"`
	Metadata    ExportMetadata `json:"metadata"`
}

// Find returns the cluster with the given id.
func (e *Export) Find(id string) (Cluster, bool) {
	for _, c := range e.Communities {
		if c.ID == id {
			return c, true
		}
	}
	return Cluster{}, false
}
