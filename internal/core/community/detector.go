package community

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/core/graph"
	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/priority"
)

const (
	AlgorithmGreedy           = "modularity-greedy"
	AlgorithmLeiden           = "modularity-leiden"
	AlgorithmLabelPropagation = "label-propagation"

	// MixedCategory labels global clusters whose members span categories.
	MixedCategory = "mixed"
)

var ErrUnknownAlgorithm = errors.New("unknown community detection algorithm")

// Algorithm partitions nodes into communities. Every node appears in exactly
// one returned group.
type Algorithm interface {
	Name() string
	Partition(nodes []string, edges []model.CandidateEdge) ([][]string, error)
}

// Registry maps algorithm selectors to implementations.
type Registry struct {
	factories map[string]func() Algorithm
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]func() Algorithm)}
	r.Register(AlgorithmGreedy, func() Algorithm { return NewGreedyModularity() })
	r.Register(AlgorithmLeiden, func() Algorithm { return NewLeiden() })
	r.Register(AlgorithmLabelPropagation, func() Algorithm { return NewLabelPropagation() })
	return r
}

func (r *Registry) Register(name string, factory func() Algorithm) {
	r.factories[name] = factory
}

func (r *Registry) Lookup(name string) (Algorithm, error) {
	f, ok := r.factories[name]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return f(), nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type Options struct {
	Algorithm   string
	PerCategory bool
	MinSize     int
	// MaxSize flags larger clusters as oversized; 0 disables the flag.
	MaxSize int
}

func DefaultOptions() Options {
	return Options{
		Algorithm:   AlgorithmLeiden,
		PerCategory: true,
		MinSize:     2,
		MaxSize:     25,
	}
}

// Detector turns a candidate graph into a scored, numbered partition.
type Detector struct {
	algo     Algorithm
	fallback Algorithm
	opts     Options
	scorer   *priority.Scorer
	logger   zerolog.Logger
}

func NewDetector(reg *Registry, opts Options, scorer *priority.Scorer, logger zerolog.Logger) *Detector {
	logger = logger.With().Str("component", "community").Logger()
	if reg == nil {
		reg = NewRegistry()
	}
	if scorer == nil {
		scorer = priority.NewScorer()
	}
	if opts.MinSize < 1 {
		opts.MinSize = 1
	}

	fallback := Algorithm(NewGreedyModularity())
	algo, err := reg.Lookup(opts.Algorithm)
	if err != nil {
		logger.Warn().Err(err).Str("requested", opts.Algorithm).Str("fallback", AlgorithmGreedy).Msg("Community algorithm unavailable, falling back")
		algo = fallback
	}

	return &Detector{
		algo:     algo,
		fallback: fallback,
		opts:     opts,
		scorer:   scorer,
		logger:   logger,
	}
}

func (d *Detector) AlgorithmName() string {
	return d.algo.Name()
}

// Detect partitions the graph, per category when isolation is enabled, and
// returns the export document with fresh COMM-NNN ids.
func (d *Detector) Detect(g *graph.Graph) (*model.Export, error) {
	category := make(map[string]string, len(g.Items))
	for _, it := range g.Items {
		category[it.ID] = it.Category
	}

	type bucket struct {
		nodes map[string]struct{}
		edges []model.CandidateEdge
	}
	buckets := make(map[string]*bucket)
	for _, e := range g.Edges {
		key := ""
		if d.opts.PerCategory {
			if e.CrossCategory {
				continue
			}
			key = e.SrcCategory
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{nodes: make(map[string]struct{})}
			buckets[key] = b
		}
		b.nodes[e.Src] = struct{}{}
		b.nodes[e.Dst] = struct{}{}
		b.edges = append(b.edges, e)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		clusters  []model.Cluster
		skipped   int
		oversized int
	)
	for _, key := range keys {
		b := buckets[key]
		nodes := make([]string, 0, len(b.nodes))
		for n := range b.nodes {
			nodes = append(nodes, n)
		}

		parts, err := d.partition(nodes, b.edges)
		if err != nil {
			return nil, fmt.Errorf("failed to partition category %q: %w", key, err)
		}

		for _, members := range parts {
			if len(members) < d.opts.MinSize {
				skipped++
				continue
			}
			c := d.buildCluster(members, b.edges, category)
			if c.Oversized {
				oversized++
			}
			clusters = append(clusters, c)
		}
	}

	d.scorer.Apply(clusters)
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].Category != clusters[j].Category {
			return clusters[i].Category < clusters[j].Category
		}
		return clusters[i].Members[0] < clusters[j].Members[0]
	})
	for i := range clusters {
		clusters[i].ID = ClusterID(i + 1)
	}
	if clusters == nil {
		clusters = []model.Cluster{}
	}

	d.logger.Debug().
		Str("algorithm", d.algo.Name()).
		Int("clusters", len(clusters)).
		Int("skipped_small", skipped).
		Int("oversized", oversized).
		Msg("Partition computed")

	return &model.Export{
		Communities: clusters,
		Metadata: model.ExportMetadata{
			TotalItems:              len(g.Items),
			GraphEdges:              len(g.Edges),
			Algorithm:               d.algo.Name(),
			PerCategory:             d.opts.PerCategory,
			SkippedSmallCommunities: skipped,
			OversizedCommunities:    oversized,
		},
	}, nil
}

func (d *Detector) partition(nodes []string, edges []model.CandidateEdge) ([][]string, error) {
	parts, err := d.algo.Partition(nodes, edges)
	if err == nil || d.algo.Name() == d.fallback.Name() {
		return parts, err
	}
	d.logger.Warn().Err(err).Str("algorithm", d.algo.Name()).Msg("Community algorithm failed, falling back to greedy")
	return d.fallback.Partition(nodes, edges)
}

func (d *Detector) buildCluster(members []string, edges []model.CandidateEdge, category map[string]string) model.Cluster {
	sort.Strings(members)
	in := make(map[string]struct{}, len(members))
	for _, m := range members {
		in[m] = struct{}{}
	}

	var (
		internal []model.WeightedEdge
		sum      float64
	)
	for _, e := range edges {
		_, okSrc := in[e.Src]
		_, okDst := in[e.Dst]
		if okSrc && okDst {
			internal = append(internal, model.WeightedEdge{U: e.Src, V: e.Dst, Weight: e.Weight})
			sum += e.Weight
		}
	}

	n := len(members)
	c := model.Cluster{
		Category: clusterCategory(members, category),
		Members:  members,
		Size:     n,
		Edges:    internal,
	}
	if len(internal) > 0 {
		c.AvgSimilarity = sum / float64(len(internal))
	}
	if n > 1 {
		c.Density = float64(len(internal)) / (float64(n*(n-1)) / 2)
	}
	c.Oversized = d.opts.MaxSize > 0 && n > d.opts.MaxSize
	return c
}

func clusterCategory(members []string, category map[string]string) string {
	cat := category[members[0]]
	for _, m := range members[1:] {
		if category[m] != cat {
			return MixedCategory
		}
	}
	return cat
}

func ClusterID(n int) string {
	return fmt.Sprintf("COMM-%03d", n)
}
