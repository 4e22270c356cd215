package oracle

import (
	"context"
	"sort"

	"github.com/agenthands/roundup/internal/core/model"
)

// Oracle adjudicates one cluster and returns the raw reply text. Replies
// are only trusted after Validate.
type Oracle interface {
	Adjudicate(ctx context.Context, req Request) (string, error)
}

type Member struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Body   string            `json:"body,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type Request struct {
	ClusterID string   `json:"cluster_id"`
	Category  string   `json:"category"`
	Round     int      `json:"round"`
	Members   []Member `json:"members"`
}

// NewRequest builds the request for a cluster. Member ids absent from items
// are returned as missing and left out of the request.
func NewRequest(c model.Cluster, items map[string]model.Item, round int) (Request, []string) {
	req := Request{ClusterID: c.ID, Category: c.Category, Round: round}
	var missing []string
	for _, id := range c.Members {
		it, ok := items[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		req.Members = append(req.Members, Member{ID: it.ID, Title: it.Title, Body: it.Body, Fields: it.Fields})
	}
	return req, missing
}

func (r Request) MemberIDs() []string {
	ids := make([]string, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.ID
	}
	sort.Strings(ids)
	return ids
}
