package driver

import (
	"context"
	"errors"
	"slices"

	"github.com/agenthands/roundup/internal/core/model"
)

var ErrNotFound = errors.New("item not found")

// Mutation is one item transition and its decision record. Stores apply
// both in a single transaction.
type Mutation struct {
	ItemID string
	// From lists the statuses the item must be in; empty accepts any.
	From []model.ItemStatus
	// To is the new status; empty records the decision without a transition.
	To       model.ItemStatus
	TargetID string
	Record   model.DecisionRecord
}

func (m Mutation) eligible(current model.ItemStatus) bool {
	return len(m.From) == 0 || slices.Contains(m.From, current)
}

// ItemStore is the external item collection. Rows are never deleted.
type ItemStore interface {
	Items(ctx context.Context) ([]model.Item, error)
	GetItems(ctx context.Context, ids []string) (map[string]model.Item, error)
	// Apply reports false, writing nothing, when the item is not in one of
	// the From statuses. A missing item yields ErrNotFound.
	Apply(ctx context.Context, m Mutation) (bool, error)
	Records(ctx context.Context) ([]model.DecisionRecord, error)
	Close(ctx context.Context) error
}

// Seeder loads items into a store. Used by imports and tests.
type Seeder interface {
	Seed(ctx context.Context, items []model.Item) error
}
