package dedupe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/driver"
)

// DecisionLogger receives every applied decision record.
type DecisionLogger interface {
	Append(records ...model.DecisionRecord) error
}

type Options struct {
	// Threshold is the "certain duplicate" edge weight.
	Threshold   float64
	PerCategory bool
	User        string
}

// Merge folds Src into Anchor.
type Merge struct {
	Src    string `json:"src"`
	Anchor string `json:"anchor"`
}

type Result struct {
	Components int     `json:"components"`
	Merged     int     `json:"merged"`
	Skipped    int     `json:"skipped"`
	Merges     []Merge `json:"merges"`
	DryRun     bool    `json:"dry_run"`
}

// Engine merges unambiguous duplicates without consulting the oracle.
type Engine struct {
	store  driver.ItemStore
	log    DecisionLogger
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

func NewEngine(store driver.ItemStore, log DecisionLogger, opts Options, logger zerolog.Logger) *Engine {
	if opts.User == "" {
		opts.User = "auto-dedup"
	}
	return &Engine{
		store:  store,
		log:    log,
		opts:   opts,
		logger: logger.With().Str("component", "autodedup").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run unions every edge at or above the threshold and supersedes all active
// members of each component into its lexicographically smallest active id.
// With dryRun set the merges are planned and returned but not written.
func (e *Engine) Run(ctx context.Context, items []model.Item, edges []model.CandidateEdge, dryRun bool) (*Result, error) {
	res := &Result{DryRun: dryRun, Merges: []Merge{}}
	status := model.IndexItems(items)

	var pairs [][2]string
	for _, edge := range edges {
		if edge.Weight < e.opts.Threshold {
			continue
		}
		if e.opts.PerCategory && edge.CrossCategory {
			continue
		}
		pairs = append(pairs, [2]string{edge.Src, edge.Dst})
	}

	for _, component := range connectedComponents(pairs) {
		res.Components++

		var active []string
		for _, id := range component {
			if it, ok := status[id]; ok && it.Active() {
				active = append(active, id)
			}
		}
		if len(active) == 0 {
			res.Skipped++
			continue
		}

		anchor := active[0]
		for _, src := range active[1:] {
			res.Merges = append(res.Merges, Merge{Src: src, Anchor: anchor})
			if dryRun {
				continue
			}
			applied, err := e.apply(ctx, src, anchor)
			if err != nil {
				return res, err
			}
			if applied {
				res.Merged++
			}
		}
	}

	e.logger.Info().
		Int("components", res.Components).
		Int("merged", res.Merged).
		Int("planned", len(res.Merges)).
		Int("skipped", res.Skipped).
		Bool("dry_run", dryRun).
		Float64("threshold", e.opts.Threshold).
		Msg("Auto-dedup finished")
	return res, nil
}

func (e *Engine) apply(ctx context.Context, src, anchor string) (bool, error) {
	rec := model.DecisionRecord{
		Timestamp: e.now(),
		User:      e.opts.User,
		EntryID:   src,
		Action:    model.ActionMerge,
		TargetID:  anchor,
		Notes:     fmt.Sprintf("auto-dedup: similarity >= %.3f", e.opts.Threshold),
	}
	applied, err := e.store.Apply(ctx, driver.Mutation{
		ItemID:   src,
		From:     []model.ItemStatus{model.StatusActive},
		To:       model.StatusSuperseded,
		TargetID: anchor,
		Record:   rec,
	})
	if err != nil {
		return false, fmt.Errorf("failed to supersede %s into %s: %w", src, anchor, err)
	}
	if applied && e.log != nil {
		if err := e.log.Append(rec); err != nil {
			return true, fmt.Errorf("failed to log merge of %s: %w", src, err)
		}
	}
	return applied, nil
}

// connectedComponents returns components of two or more ids, each sorted,
// ordered by their smallest member.
func connectedComponents(pairs [][2]string) [][]string {
	parent := make(map[string]string)

	var find func(x string) string
	find = func(x string) string {
		if _, ok := parent[x]; !ok {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	union := func(x, y string) {
		px, py := find(x), find(y)
		if px != py {
			parent[px] = py
		}
	}

	for _, p := range pairs {
		union(p[0], p[1])
	}

	components := make(map[string][]string)
	for id := range parent {
		root := find(id)
		components[root] = append(components[root], id)
	}

	result := make([][]string, 0, len(components))
	for _, group := range components {
		if len(group) > 1 {
			sort.Strings(group)
			result = append(result, group)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i][0] < result[j][0] })
	return result
}
