package model

import (
	"sort"
	"strings"
	"time"
)

// ItemStatus is the lifecycle state of an item in the external store.
type ItemStatus string

const (
	StatusPending      ItemStatus = "pending"
	StatusActive       ItemStatus = "active"
	StatusSuperseded   ItemStatus = "superseded"
	StatusManualReview ItemStatus = "manual_review"
	StatusRejected     ItemStatus = "rejected"
)

// Item is a short text record. The consolidator only ever changes Status
// and SupersededBy; rows are never deleted.
type Item struct {
	ID           string            `json:"id"`
	Category     string            `json:"category"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Fields       map[string]string `json:"fields,omitempty"`
	Status       ItemStatus        `json:"status"`
	SupersededBy string            `json:"superseded_by,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (i Item) Active() bool {
	return i.Status == StatusActive
}

// Text joins the text-bearing fields in a stable order.
func (i Item) Text() string {
	var b strings.Builder
	b.WriteString(i.Title)
	if i.Body != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(i.Body)
	}
	keys := make([]string, 0, len(i.Fields))
	for k := range i.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(i.Fields[k])
	}
	return b.String()
}

// IndexItems maps items by id.
func IndexItems(items []Item) map[string]Item {
	out := make(map[string]Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

// ActiveItems filters to items with StatusActive.
func ActiveItems(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if it.Active() {
			out = append(out, it)
		}
	}
	return out
}
