//go:build integration

package driver

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/roundup/internal/core/model"
)

func TestMemgraphStore_IdempotentMerge(t *testing.T) {
	_ = godotenv.Load("../../.env")
	uri := os.Getenv("MEMGRAPH_URI")
	if uri == "" {
		uri = "bolt://localhost:7687"
	}

	ctx := context.Background()
	s, err := NewMemgraphStore(ctx, uri, os.Getenv("MEMGRAPH_USER"), os.Getenv("MEMGRAPH_PASSWORD"), zerolog.Nop())
	if err != nil {
		t.Skipf("Memgraph not reachable at %s: %v", uri, err)
	}
	defer s.Close(ctx)
	require.NoError(t, s.BuildIndices(ctx))

	src := "it-" + uuid.NewString()
	dst := "it-" + uuid.NewString()
	require.NoError(t, s.Seed(ctx, []model.Item{
		{ID: src, Category: "bug", Title: "cannot log in", Status: model.StatusActive},
		{ID: dst, Category: "bug", Title: "login fails", Status: model.StatusActive, Fields: map[string]string{"team": "auth"}},
	}))

	applied, err := s.Apply(ctx, mergeMutation(src, dst))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Apply(ctx, mergeMutation(src, dst))
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.GetItems(ctx, []string{src, dst})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuperseded, got[src].Status)
	assert.Equal(t, dst, got[src].SupersededBy)
	assert.Equal(t, map[string]string{"team": "auth"}, got[dst].Fields)

	records, err := s.Records(ctx)
	require.NoError(t, err)
	count := 0
	for _, r := range records {
		if r.EntryID == src {
			count++
		}
	}
	assert.Equal(t, 1, count)

	_, err = s.Apply(ctx, mergeMutation("it-missing-"+uuid.NewString(), dst))
	assert.ErrorIs(t, err, ErrNotFound)
}
