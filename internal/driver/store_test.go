package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/roundup/internal/core/model"
)

func seedItems() []model.Item {
	return []model.Item{
		{ID: "A", Category: "bug", Title: "login fails", Status: model.StatusActive, Fields: map[string]string{"team": "auth"}},
		{ID: "B", Category: "bug", Title: "cannot log in", Status: model.StatusActive},
		{ID: "C", Category: "feature", Title: "dark mode", Status: model.StatusSuperseded, SupersededBy: "D"},
	}
}

func mergeMutation(src, dst string) Mutation {
	return Mutation{
		ItemID:   src,
		From:     []model.ItemStatus{model.StatusActive},
		To:       model.StatusSuperseded,
		TargetID: dst,
		Record: model.DecisionRecord{
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			User:      "roundup",
			EntryID:   src,
			Action:    model.ActionMerge,
			TargetID:  dst,
			Notes:     "duplicate",
		},
	}
}

// storeContract runs the same behaviour checks against every ItemStore.
func storeContract(t *testing.T, newStore func(t *testing.T) ItemStore) {
	ctx := context.Background()

	t.Run("items round trip", func(t *testing.T) {
		s := newStore(t)
		items, err := s.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "A", items[0].ID)
		assert.Equal(t, map[string]string{"team": "auth"}, items[0].Fields)
		assert.Equal(t, model.StatusSuperseded, items[2].Status)
		assert.Equal(t, "D", items[2].SupersededBy)

		got, err := s.GetItems(ctx, []string{"B", "missing"})
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Equal(t, "cannot log in", got["B"].Title)
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		s := newStore(t)
		applied, err := s.Apply(ctx, mergeMutation("B", "A"))
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = s.Apply(ctx, mergeMutation("B", "A"))
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := s.GetItems(ctx, []string{"B"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusSuperseded, got["B"].Status)
		assert.Equal(t, "A", got["B"].SupersededBy)

		records, err := s.Records(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, model.ActionMerge, records[0].Action)
		assert.Equal(t, "A", records[0].TargetID)
		assert.Equal(t, "duplicate", records[0].Notes)
	})

	t.Run("record without transition", func(t *testing.T) {
		s := newStore(t)
		m := Mutation{
			ItemID: "A",
			From:   []model.ItemStatus{model.StatusActive},
			Record: model.DecisionRecord{Timestamp: time.Now().UTC(), User: "roundup", EntryID: "A", Action: model.ActionKeepSeparate},
		}
		applied, err := s.Apply(ctx, m)
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := s.GetItems(ctx, []string{"A"})
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, got["A"].Status)

		records, err := s.Records(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("missing item", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Apply(ctx, mergeMutation("Z", "A"))
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ItemStore {
		return NewMemoryStore(seedItems()...)
	})
}

func TestMemoryStore_FailApply(t *testing.T) {
	s := NewMemoryStore(seedItems()...)
	s.FailApply = errors.New("disk full")
	_, err := s.Apply(context.Background(), mergeMutation("B", "A"))
	assert.EqualError(t, err, "disk full")
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ItemStore {
		ctx := context.Background()
		s, err := NewSQLiteStore(ctx, ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close(ctx) })
		require.NoError(t, s.Seed(ctx, seedItems()))
		return s
	})
}

func TestSQLiteStore_SeedUpserts(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close(ctx)

	require.NoError(t, s.Seed(ctx, seedItems()))
	require.NoError(t, s.Seed(ctx, []model.Item{{ID: "A", Category: "bug", Title: "login fails (edited)"}}))

	items, err := s.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "login fails (edited)", items[0].Title)
	assert.Equal(t, model.StatusPending, items[0].Status)
}
