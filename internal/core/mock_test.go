package core

import (
	"context"
	"sync"

	"github.com/agenthands/roundup/internal/core/graph"
	"github.com/agenthands/roundup/internal/core/model"
)

type MockLLM struct {
	Reply   func(prompt string) string
	Err     error
	Prompts []string
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply(prompt), nil
}

// MockProvider serves fixed neighbor lists and records imported embeddings.
type MockProvider struct {
	mu         sync.Mutex
	Lists      map[string][]graph.Neighbor
	Calls      int
	Embeddings map[string][]float32
	Dims       int
}

func (m *MockProvider) Neighbors(ctx context.Context, item model.Item, k int) ([]graph.Neighbor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	out := m.Lists[item.ID]
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MockProvider) ModelVersion() string { return "mock-v1" }

func (m *MockProvider) FreshnessMarker(ctx context.Context) (string, error) { return "1", nil }

func (m *MockProvider) EnsureSchema(ctx context.Context, dims int) error {
	m.Dims = dims
	return nil
}

func (m *MockProvider) Upsert(ctx context.Context, itemID, category string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Embeddings == nil {
		m.Embeddings = make(map[string][]float32)
	}
	m.Embeddings[itemID] = embedding
	return nil
}
