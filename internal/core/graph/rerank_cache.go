package graph

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/agenthands/roundup/internal/core/common"
	"github.com/agenthands/roundup/internal/core/model"
)

// RerankCache holds re-ranker scores keyed by undirected item pair. It is
// only valid for the re-ranker named in Key.
type RerankCache struct {
	Path string

	mu     sync.RWMutex
	key    string
	scores map[string]float64
	dirty  bool
}

type rerankFile struct {
	Key    string             `json:"key"`
	Scores map[string]float64 `json:"scores"`
}

func NewRerankCache(path, key string) *RerankCache {
	return &RerankCache{Path: path, key: key, scores: make(map[string]float64)}
}

// Load reads persisted scores. A file written for a different key is ignored.
func (c *RerankCache) Load() error {
	if c.Path == "" {
		return nil
	}
	var f rerankFile
	if err := common.ReadJSON(c.Path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load rerank cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Key != c.key {
		return nil
	}
	for k, v := range f.Scores {
		c.scores[k] = v
	}
	return nil
}

func (c *RerankCache) Get(a, b string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.scores[model.PairKey(a, b)]
	return v, ok
}

func (c *RerankCache) Put(a, b string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[model.PairKey(a, b)] = score
	c.dirty = true
}

func (c *RerankCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scores)
}

// Save persists the cache if it changed since the last save.
func (c *RerankCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty || c.Path == "" {
		return nil
	}
	if err := common.WriteJSONAtomic(c.Path, rerankFile{Key: c.key, Scores: c.scores}); err != nil {
		return err
	}
	c.dirty = false
	return nil
}
