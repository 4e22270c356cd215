package rounds

import (
	"sort"

	"github.com/agenthands/roundup/internal/core/model"
)

// Selected is a cluster picked for adjudication. Index is its position in
// the round's ordered candidate list and survives resumes.
type Selected struct {
	Cluster model.Cluster
	Index   int
}

// candidates orders the clusters eligible this round: priority descending,
// id ascending. Unresolved clusters with no active member are dropped, and
// oversized ones unless processOversized is set. Clusters resolved this
// round always stay in the list, even once a manual_review verdict has left
// them without active members, so indices and the batch quota survive a
// resume.
func candidates(export *model.Export, items map[string]model.Item, st *model.RoundState, processOversized bool) []model.Cluster {
	var out []model.Cluster
	for _, c := range export.Communities {
		if st == nil || !st.IsResolved(c.ID) {
			if c.Oversized && !processOversized {
				continue
			}
			if !anyActive(c.Members, items) {
				continue
			}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// selectBatch picks the unresolved candidates for this round. Clusters
// already resolved in the round count against batchSize.
func selectBatch(cands []model.Cluster, st *model.RoundState, batchSize int) []Selected {
	quota := -1
	if batchSize > 0 {
		done := 0
		for _, c := range cands {
			if st.IsResolved(c.ID) {
				done++
			}
		}
		quota = batchSize - done
		if quota <= 0 {
			return nil
		}
	}

	var out []Selected
	for i, c := range cands {
		if st.IsResolved(c.ID) {
			continue
		}
		out = append(out, Selected{Cluster: c, Index: i})
		if quota > 0 && len(out) == quota {
			break
		}
	}
	return out
}

func anyActive(ids []string, items map[string]model.Item) bool {
	for _, id := range ids {
		if it, ok := items[id]; ok && it.Active() {
			return true
		}
	}
	return false
}

func countActive(items []model.Item) int {
	n := 0
	for _, it := range items {
		if it.Active() {
			n++
		}
	}
	return n
}
