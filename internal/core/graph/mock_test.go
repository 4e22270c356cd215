package graph

import (
	"context"
	"sync"

	"github.com/agenthands/roundup/internal/core/model"
)

type MockProvider struct {
	Version   string
	Marker    string
	Responses map[string][]Neighbor
	Err       error

	mu    sync.Mutex
	Calls int
}

func (m *MockProvider) Neighbors(ctx context.Context, item model.Item, k int) ([]Neighbor, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	hits := m.Responses[item.ID]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MockProvider) ModelVersion() string { return m.Version }

func (m *MockProvider) FreshnessMarker(ctx context.Context) (string, error) {
	return m.Marker, nil
}

type MockReranker struct {
	Scores map[string]float64
	Calls  int
}

func (m *MockReranker) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	m.Calls++
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = m.Scores[d]
	}
	return out, nil
}

func (m *MockReranker) Name() string { return "mock" }
