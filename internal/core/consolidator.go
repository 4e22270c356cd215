package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/config"
	"github.com/agenthands/roundup/internal/core/community"
	"github.com/agenthands/roundup/internal/core/dedupe"
	"github.com/agenthands/roundup/internal/core/graph"
	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/oracle"
	"github.com/agenthands/roundup/internal/core/priority"
	"github.com/agenthands/roundup/internal/core/rounds"
	"github.com/agenthands/roundup/internal/core/state"
	"github.com/agenthands/roundup/internal/driver"
	"github.com/agenthands/roundup/internal/llm"
	"github.com/agenthands/roundup/internal/similarity/pgvector"
)

// Deps are the external systems a Consolidator talks to. Provider may be
// nil, in which case only the neighbor cache is used. LLM is created from
// config on first use when nil.
type Deps struct {
	Store    driver.ItemStore
	Provider graph.SimilarityProvider
	LLM      llm.LLMClient
}

// Consolidator wires the pipeline together from configuration.
type Consolidator struct {
	Config *config.Config
	Store  driver.ItemStore
	State  *state.Store
	Log    *state.DecisionLog

	provider graph.SimilarityProvider
	llm      llm.LLMClient
	logger   zerolog.Logger
	closers  []func()
}

// New opens the configured item store and similarity provider.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Consolidator, error) {
	var (
		deps    Deps
		closers []func()
	)

	switch cfg.Store.Driver {
	case "memgraph":
		mg := cfg.Store.Memgraph
		store, err := driver.NewMemgraphStore(ctx, mg.URI, mg.User, mg.Password, logger)
		if err != nil {
			return nil, err
		}
		if err := store.BuildIndices(ctx); err != nil {
			store.Close(ctx)
			return nil, err
		}
		deps.Store = store
	default:
		store, err := driver.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		deps.Store = store
	}

	if cfg.Similarity.Provider == "pgvector" && cfg.Similarity.DatabaseURL == "" {
		logger.Warn().Msg("No similarity database configured, using the neighbor cache only")
	}
	if cfg.Similarity.Provider == "pgvector" && cfg.Similarity.DatabaseURL != "" {
		p, err := pgvector.NewProvider(ctx, pgvector.Config{
			DatabaseURL:  cfg.Similarity.DatabaseURL,
			Table:        cfg.Similarity.Table,
			ModelVersion: cfg.Similarity.ModelVersion,
		}, logger)
		if err != nil {
			deps.Store.Close(ctx)
			return nil, err
		}
		deps.Provider = p
		closers = append(closers, p.Close)
	}

	c := NewWithDeps(cfg, deps, logger)
	c.closers = append(c.closers, closers...)
	return c, nil
}

func NewWithDeps(cfg *config.Config, deps Deps, logger zerolog.Logger) *Consolidator {
	return &Consolidator{
		Config:   cfg,
		Store:    deps.Store,
		State:    state.NewStore(cfg.Path(cfg.Paths.StateFile)),
		Log:      state.NewDecisionLog(cfg.Path(cfg.Paths.DecisionLog)),
		provider: deps.Provider,
		llm:      deps.LLM,
		logger:   logger,
	}
}

func (c *Consolidator) Close(ctx context.Context) error {
	for _, fn := range c.closers {
		fn()
	}
	return c.Store.Close(ctx)
}

func (c *Consolidator) client(ctx context.Context) (llm.LLMClient, error) {
	if c.llm != nil {
		return c.llm, nil
	}
	client, err := llm.NewClient(ctx, c.Config.LLM, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if cl, ok := client.(interface{ Close() error }); ok {
		c.closers = append(c.closers, func() { _ = cl.Close() })
	}
	c.llm = client
	return client, nil
}

// builder prepares a graph.Builder over the cached or freshly
// queried neighbors.
func (c *Consolidator) builder(ctx context.Context, force bool) (*graph.Builder, graph.BuildStats, []model.Item, error) {
	cfg := c.Config
	if err := os.MkdirAll(cfg.Paths.WorkDir, 0o755); err != nil {
		return nil, graph.BuildStats{}, nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	opts := graph.Options{
		TopK:          cfg.Graph.TopK,
		MinThreshold:  cfg.Graph.MinThreshold,
		EdgeThreshold: cfg.Graph.EdgeThreshold,
		PerCategory:   cfg.Graph.PerCategory,
		WEmbed:        1,
		Concurrency:   cfg.Graph.Concurrency,
		Force:         force,
	}

	var (
		reranker *llm.SimpleLLMReranker
		cache    *graph.RerankCache
	)
	if cfg.Rerank.Enabled {
		client, err := c.client(ctx)
		if err != nil {
			return nil, graph.BuildStats{}, nil, err
		}
		reranker = llm.NewSimpleLLMReranker(client, cfg.LLM.Model)
		cache = graph.NewRerankCache(cfg.Path(cfg.Paths.RerankCache), reranker.Name())
		if err := cache.Load(); err != nil {
			return nil, graph.BuildStats{}, nil, err
		}
		opts.WEmbed, opts.WRerank = cfg.Rerank.WEmbed, cfg.Rerank.WRerank
	}

	b := graph.NewBuilder(c.provider, graph.NewNeighborCache(cfg.Path(cfg.Paths.NeighborCache)), opts, c.logger)
	if reranker != nil {
		b.WithReranker(reranker, cache)
	}

	items, err := c.Store.Items(ctx)
	if err != nil {
		return nil, graph.BuildStats{}, nil, fmt.Errorf("failed to read items: %w", err)
	}
	stats, err := b.Prepare(ctx, items)
	if err != nil {
		return nil, stats, nil, err
	}
	return b, stats, items, nil
}

func (c *Consolidator) detector() *community.Detector {
	g := c.Config.Graph
	return community.NewDetector(community.NewRegistry(), community.Options{
		Algorithm:   g.Algorithm,
		PerCategory: g.PerCategory,
		MinSize:     g.MinCommunitySize,
		MaxSize:     g.MaxCommunitySize,
	}, priority.NewScorer(), c.logger)
}

func (c *Consolidator) autoDedupEngine() *dedupe.Engine {
	return dedupe.NewEngine(c.Store, c.Log, dedupe.Options{
		Threshold:   c.Config.Graph.AutoDedupThreshold,
		PerCategory: c.Config.Graph.PerCategory,
		User:        "auto-dedup",
	}, c.logger)
}

// BuildGraph refreshes the neighbor cache when its key is stale (or force
// is set) and returns the current clustering graph.
func (c *Consolidator) BuildGraph(ctx context.Context, force bool) (*graph.Graph, graph.BuildStats, error) {
	b, stats, items, err := c.builder(ctx, force)
	if err != nil {
		return nil, stats, err
	}
	return b.Rebuild(items), stats, nil
}

// Export partitions the current graph and writes the cluster export.
func (c *Consolidator) Export(ctx context.Context, path string) (*model.Export, error) {
	b, _, items, err := c.builder(ctx, false)
	if err != nil {
		return nil, err
	}
	export, err := c.detector().Detect(b.Rebuild(items))
	if err != nil {
		return nil, err
	}
	export.Metadata.MinThreshold = b.Options().MinThreshold
	if path != "" {
		if err := community.WriteExport(path, export); err != nil {
			return nil, err
		}
	}
	return export, nil
}

// AutoDedup runs the exact-duplicate pass on its own.
func (c *Consolidator) AutoDedup(ctx context.Context, dryRun bool) (*dedupe.Result, error) {
	b, _, items, err := c.builder(ctx, false)
	if err != nil {
		return nil, err
	}
	return c.autoDedupEngine().Run(ctx, items, b.Edges(items, 0), dryRun)
}

type RunOptions struct {
	Restart bool
	DryRun  bool
	Force   bool
}

// Run executes the round loop.
func (c *Consolidator) Run(ctx context.Context, opts RunOptions) (*rounds.Report, error) {
	cfg := c.Config
	b, _, _, err := c.builder(ctx, opts.Force)
	if err != nil {
		return nil, err
	}
	client, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	deps := rounds.Deps{
		Store:    c.Store,
		Builder:  b,
		Detector: c.detector(),
		Oracle: oracle.NewLLMOracle(client, oracle.LLMOptions{
			RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
			Instructions:      cfg.Oracle.Instructions,
		}, c.logger),
		Policy: oracle.NewPolicy(cfg.Oracle.MaxRetries, cfg.Oracle.RetryBackoff, cfg.RetryBase(), cfg.RetryDelays()),
		State:  c.State,
		Log:    c.Log,
	}
	if !cfg.Rounds.SkipAutoDedup {
		deps.AutoDedup = c.autoDedupEngine()
	}

	ro := rounds.Options{
		MaxRounds:            cfg.Rounds.MaxRounds,
		BatchSize:            cfg.Rounds.BatchSize,
		ImprovementThreshold: cfg.Rounds.ImprovementThreshold,
		ProcessOversized:     cfg.Rounds.ProcessOversized,
		MaxRuntime:           secondsDuration(cfg.Rounds.MaxRuntimeSeconds),
		PerCall:              secondsDuration(cfg.Rounds.SecondsPerCall),
		SafetyMultiplier:     cfg.Rounds.SafetyMultiplier,
		AnticipatedCalls:     cfg.Rounds.AnticipatedCalls,
		DryRun:               cfg.Rounds.DryRun || opts.DryRun,
		Restart:              opts.Restart,
		WorkDir:              cfg.Paths.WorkDir,
		ReportPath:           cfg.Path(cfg.Paths.Report),
		User:                 cfg.Oracle.User,
	}
	return rounds.New(deps, ro, c.logger).Run(ctx)
}

// Status returns the saved round state, or nil when no run has started.
func (c *Consolidator) Status() (*model.RoundState, error) {
	st, err := c.State.Load()
	if errors.Is(err, state.ErrNoState) {
		return nil, nil
	}
	return st, err
}

// ImportRecord is one line of an item import. Embedding is optional and
// only stored when the similarity provider accepts embeddings.
type ImportRecord struct {
	model.Item
	Embedding []float32 `json:"embedding,omitempty"`
}

type embeddingSink interface {
	EnsureSchema(ctx context.Context, dims int) error
	Upsert(ctx context.Context, itemID, category string, embedding []float32) error
}

// Import seeds items into the store and their embeddings into the index.
func (c *Consolidator) Import(ctx context.Context, records []ImportRecord) (int, error) {
	seeder, ok := c.Store.(driver.Seeder)
	if !ok {
		return 0, errors.New("item store does not support imports")
	}
	items := make([]model.Item, len(records))
	for i, r := range records {
		it := r.Item
		if it.Status == "" {
			it.Status = model.StatusActive
		}
		it.Status = model.ItemStatus(strings.ToLower(string(it.Status)))
		items[i] = it
	}
	if err := seeder.Seed(ctx, items); err != nil {
		return 0, fmt.Errorf("failed to seed items: %w", err)
	}

	sink, ok := c.provider.(embeddingSink)
	if !ok {
		return len(items), nil
	}
	schemaReady := false
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		if !schemaReady {
			if err := sink.EnsureSchema(ctx, len(r.Embedding)); err != nil {
				return len(items), err
			}
			schemaReady = true
		}
		if err := sink.Upsert(ctx, r.ID, r.Category, r.Embedding); err != nil {
			return len(items), err
		}
	}
	return len(items), nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
