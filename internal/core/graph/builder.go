package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/roundup/internal/core/model"
)

type Options struct {
	TopK int
	// MinThreshold is the raw floor for cached neighbors and part of the cache key.
	MinThreshold float64
	// EdgeThreshold is the keep threshold for the clustering graph.
	EdgeThreshold float64
	PerCategory   bool
	WEmbed        float64
	WRerank       float64
	Concurrency   int
	Force         bool
}

func DefaultOptions() Options {
	return Options{
		TopK:          10,
		MinThreshold:  0.5,
		EdgeThreshold: 0.75,
		PerCategory:   true,
		WEmbed:        1.0,
		WRerank:       0.0,
		Concurrency:   8,
	}
}

// Graph is a flat node/edge view over the active items.
type Graph struct {
	Items []model.Item
	Edges []model.CandidateEdge
}

func (g *Graph) Empty() bool {
	return len(g.Edges) == 0
}

type BuildStats struct {
	FromCache bool
	Queried   int
	Neighbors int
	Reranked  int
	Dropped   int
	Elapsed   time.Duration
	CacheKey  CacheKey
}

// Builder produces candidate edges. Neighbors are fetched once per cache
// key; every later graph is derived from the cached raw list.
type Builder struct {
	provider SimilarityProvider
	reranker Reranker
	cache    *NeighborCache
	rerank   *RerankCache
	opts     Options
	logger   zerolog.Logger

	mu  sync.RWMutex
	raw []NeighborRecord
}

func NewBuilder(provider SimilarityProvider, cache *NeighborCache, opts Options, logger zerolog.Logger) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Builder{
		provider: provider,
		cache:    cache,
		opts:     opts,
		logger:   logger.With().Str("component", "graph").Logger(),
	}
}

// WithReranker enables score blending. The cache is shared with the caller.
func (b *Builder) WithReranker(r Reranker, cache *RerankCache) *Builder {
	b.reranker = r
	b.rerank = cache
	return b
}

func (b *Builder) Options() Options {
	return b.opts
}

// Prepare makes the raw neighbor list available, from the cache when its
// key still matches, otherwise by querying the provider for every active
// item. items must contain every known item regardless of status.
func (b *Builder) Prepare(ctx context.Context, items []model.Item) (BuildStats, error) {
	start := time.Now()
	stats := BuildStats{}

	if b.provider == nil {
		return stats, b.loadCacheOnly()
	}

	marker, err := b.provider.FreshnessMarker(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read index freshness marker: %w", err)
	}
	key := NewCacheKey(b.provider.ModelVersion(), b.opts.TopK, b.opts.MinThreshold, marker)
	stats.CacheKey = key

	if !b.opts.Force {
		cached, records, err := b.cache.Load()
		switch {
		case err == nil && cached.Matches(key):
			b.setRaw(records)
			stats.FromCache = true
			stats.Neighbors = len(records)
			b.logger.Info().Int("neighbors", len(records)).Str("model_version", key.ModelVersion).Msg("Neighbor cache is valid, skipping similarity queries")
			if err := b.prepareRerank(ctx, items, &stats); err != nil {
				return stats, err
			}
			stats.Elapsed = time.Since(start)
			return stats, nil
		case err == nil:
			b.logger.Info().Interface("cached", cached).Interface("wanted", key).Msg("Neighbor cache key mismatch, rebuilding")
		case errors.Is(err, ErrCacheMissing):
			b.logger.Info().Str("path", b.cache.Path).Msg("No neighbor cache, building")
		default:
			b.logger.Warn().Err(err).Msg("Unreadable neighbor cache, rebuilding")
		}
	}

	records, queried, dropped, err := b.query(ctx, items)
	if err != nil {
		return stats, err
	}
	if err := b.cache.Write(key, records); err != nil {
		return stats, fmt.Errorf("failed to write neighbor cache: %w", err)
	}
	b.setRaw(records)

	stats.Queried = queried
	stats.Neighbors = len(records)
	stats.Dropped = dropped
	if err := b.prepareRerank(ctx, items, &stats); err != nil {
		return stats, err
	}
	stats.Elapsed = time.Since(start)

	b.logger.Info().
		Int("queried", queried).
		Int("neighbors", len(records)).
		Int("dropped", dropped).
		Dur("elapsed", stats.Elapsed).
		Msg("Neighbor cache rebuilt")
	return stats, nil
}

func (b *Builder) loadCacheOnly() error {
	_, records, err := b.cache.Load()
	if err != nil {
		return fmt.Errorf("no similarity provider configured and cache unavailable: %w", err)
	}
	b.setRaw(records)
	return nil
}

func (b *Builder) query(ctx context.Context, items []model.Item) ([]NeighborRecord, int, int, error) {
	known := model.IndexItems(items)
	active := model.ActiveItems(items)

	var (
		mu      sync.Mutex
		records []NeighborRecord
		dropped int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for _, item := range active {
		g.Go(func() error {
			hits, err := b.provider.Neighbors(gctx, item, b.opts.TopK)
			if err != nil {
				return fmt.Errorf("failed to fetch neighbors for %s: %w", item.ID, err)
			}

			var local []NeighborRecord
			skipped := 0
			for _, h := range hits {
				if h.ID == item.ID {
					continue
				}
				other, ok := known[h.ID]
				if !ok {
					skipped++
					continue
				}
				if h.Score < b.opts.MinThreshold {
					continue
				}
				local = append(local, NeighborRecord{
					Src:         item.ID,
					Dst:         other.ID,
					EmbedScore:  h.Score,
					SrcCategory: item.Category,
					DstCategory: other.Category,
				})
			}

			mu.Lock()
			records = append(records, local...)
			dropped += skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, 0, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Src != records[j].Src {
			return records[i].Src < records[j].Src
		}
		return records[i].Dst < records[j].Dst
	})
	return records, len(active), dropped, nil
}

// prepareRerank fills the rerank cache for every raw pair it does not know yet.
func (b *Builder) prepareRerank(ctx context.Context, items []model.Item, stats *BuildStats) error {
	if b.reranker == nil || b.rerank == nil {
		return nil
	}
	known := model.IndexItems(items)

	bySrc := make(map[string][]string)
	seen := make(map[string]bool)
	var order []string
	for _, r := range b.rawSnapshot() {
		k := model.PairKey(r.Src, r.Dst)
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := b.rerank.Get(r.Src, r.Dst); ok {
			continue
		}
		if _, ok := bySrc[r.Src]; !ok {
			order = append(order, r.Src)
		}
		bySrc[r.Src] = append(bySrc[r.Src], r.Dst)
	}

	for _, src := range order {
		dsts := bySrc[src]
		docs := make([]string, len(dsts))
		for i, d := range dsts {
			docs[i] = known[d].Text()
		}
		scores, err := b.reranker.Score(ctx, known[src].Text(), docs)
		if err != nil {
			b.logger.Warn().Err(err).Str("src", src).Msg("Re-ranking failed, falling back to embedding score")
			continue
		}
		for i, d := range dsts {
			if i < len(scores) {
				b.rerank.Put(src, d, scores[i])
				stats.Reranked++
			}
		}
	}

	if err := b.rerank.Save(); err != nil {
		return fmt.Errorf("failed to save rerank cache: %w", err)
	}
	return nil
}

func (b *Builder) setRaw(records []NeighborRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw = records
}

func (b *Builder) rawSnapshot() []NeighborRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.raw
}

// Edges derives undirected edges between active items with weight at or
// above threshold from the cached neighbor list. It never queries the
// similarity provider.
func (b *Builder) Edges(items []model.Item, threshold float64) []model.CandidateEdge {
	active := make(map[string]model.Item)
	for _, it := range items {
		if it.Active() {
			active[it.ID] = it
		}
	}

	best := make(map[string]model.CandidateEdge)
	for _, r := range b.rawSnapshot() {
		src, ok := active[r.Src]
		if !ok {
			continue
		}
		dst, ok := active[r.Dst]
		if !ok {
			continue
		}
		cross := src.Category != dst.Category
		if b.opts.PerCategory && cross {
			continue
		}

		e := model.CandidateEdge{
			Src:           src.ID,
			Dst:           dst.ID,
			EmbedScore:    r.EmbedScore,
			SrcCategory:   src.Category,
			DstCategory:   dst.Category,
			CrossCategory: cross,
			Weight:        r.EmbedScore,
		}
		if e.Dst < e.Src {
			e.Src, e.Dst = e.Dst, e.Src
			e.SrcCategory, e.DstCategory = e.DstCategory, e.SrcCategory
		}
		if b.reranker != nil && b.rerank != nil {
			if rr, ok := b.rerank.Get(e.Src, e.Dst); ok {
				score := rr
				e.RerankScore = &score
				e.Weight = b.opts.WEmbed*e.EmbedScore + b.opts.WRerank*rr
			}
		}
		if e.Weight < threshold {
			continue
		}

		k := model.PairKey(e.Src, e.Dst)
		if prev, ok := best[k]; !ok || e.Weight > prev.Weight {
			best[k] = e
		}
	}

	edges := make([]model.CandidateEdge, 0, len(best))
	for _, e := range best {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})
	return edges
}

// Rebuild returns the clustering graph over the active items.
func (b *Builder) Rebuild(items []model.Item) *Graph {
	return &Graph{
		Items: model.ActiveItems(items),
		Edges: b.Edges(items, b.opts.EdgeThreshold),
	}
}
