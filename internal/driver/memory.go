package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agenthands/roundup/internal/core/model"
)

// MemoryStore is an in-process ItemStore.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]model.Item
	records []model.DecisionRecord

	// FailApply makes every Apply fail, for exercising store-failure paths.
	FailApply error
}

func NewMemoryStore(items ...model.Item) *MemoryStore {
	s := &MemoryStore{items: make(map[string]model.Item)}
	for _, it := range items {
		s.items[it.ID] = it
	}
	return s
}

func (s *MemoryStore) Seed(ctx context.Context, items []model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = it
	}
	return nil
}

func (s *MemoryStore) Items(ctx context.Context) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetItems(ctx context.Context, ids []string) (map[string]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Item, len(ids))
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (s *MemoryStore) Apply(ctx context.Context, m Mutation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailApply != nil {
		return false, s.FailApply
	}

	it, ok := s.items[m.ItemID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, m.ItemID)
	}
	if !m.eligible(it.Status) {
		return false, nil
	}
	if m.To != "" {
		it.Status = m.To
		if m.TargetID != "" {
			it.SupersededBy = m.TargetID
		}
		it.UpdatedAt = time.Now().UTC()
		s.items[m.ItemID] = it
	}
	s.records = append(s.records, m.Record)
	return true, nil
}

func (s *MemoryStore) Records(ctx context.Context) ([]model.DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DecisionRecord(nil), s.records...), nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
