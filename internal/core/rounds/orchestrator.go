package rounds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/core/common"
	"github.com/agenthands/roundup/internal/core/community"
	"github.com/agenthands/roundup/internal/core/dedupe"
	"github.com/agenthands/roundup/internal/core/graph"
	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/oracle"
	"github.com/agenthands/roundup/internal/core/state"
	"github.com/agenthands/roundup/internal/driver"
)

type Options struct {
	MaxRounds            int
	BatchSize            int
	ImprovementThreshold float64
	ProcessOversized     bool

	// MaxRuntime caps the run. When zero and SafetyMultiplier is positive
	// the cap is estimated from PerCall and AnticipatedCalls, the latter
	// defaulting to the first selection size times the remaining rounds.
	MaxRuntime       time.Duration
	PerCall          time.Duration
	SafetyMultiplier float64
	AnticipatedCalls int

	DryRun  bool
	Restart bool
	// WorkDir holds the per-round cluster exports.
	WorkDir    string
	ReportPath string
	User       string
}

func DefaultOptions() Options {
	return Options{
		MaxRounds:            5,
		ImprovementThreshold: 0.05,
		PerCall:              20 * time.Second,
		User:                 "roundup",
	}
}

// DecisionLog receives every decision record that reached the item store.
type DecisionLog interface {
	Append(records ...model.DecisionRecord) error
}

// Deps are the collaborators of the loop. AutoDedup and Log are optional.
type Deps struct {
	Store     driver.ItemStore
	Builder   *graph.Builder
	Detector  *community.Detector
	Oracle    oracle.Oracle
	Policy    oracle.Policy
	State     *state.Store
	Log       DecisionLog
	AutoDedup *dedupe.Engine
}

// Orchestrator runs select, adjudicate, apply, rebuild and score until a
// stop condition holds. It is single-threaded; clusters are adjudicated one
// at a time.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	st     *model.RoundState
	report *Report
	budget Budget
	start  time.Time
}

func New(deps Deps, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.User == "" {
		opts.User = "roundup"
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 1
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "rounds").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run executes rounds until a stop condition. The report is returned for
// every outcome; the error is non-nil only for store failures, checksum
// mismatches and cancellation.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.start = o.now()
	o.report = newReport(o.opts.DryRun, o.start)
	o.budget = Budget{Limit: o.opts.MaxRuntime, PerCall: o.opts.PerCall}

	err := o.run(ctx)
	var storeErr *StoreError
	switch {
	case errors.As(err, &storeErr):
		o.report.StopReason = StopStoreError
	case err != nil && ctx.Err() != nil:
		o.report.StopReason = StopInterrupted
	}
	o.finish()
	return o.report, err
}

func (o *Orchestrator) run(ctx context.Context) error {
	items, err := o.deps.Store.Items(ctx)
	if err != nil {
		return &StoreError{Op: "read items", Err: err}
	}
	if _, err := o.deps.Builder.Prepare(ctx, items); err != nil {
		return fmt.Errorf("failed to prepare candidate graph: %w", err)
	}

	export, err := o.resume()
	if err != nil {
		return err
	}
	o.report.RunID = o.st.RunID
	o.report.StartRound = o.st.CurrentRound

	if export == nil {
		if items, err = o.autoDedup(ctx, items); err != nil {
			return err
		}
		if export, err = o.partition(items); err != nil {
			return err
		}
		if err := o.checkpoint(); err != nil {
			return err
		}
	}

	for {
		index := model.IndexItems(items)
		cands := candidates(export, index, o.st, o.opts.ProcessOversized)
		batch := selectBatch(cands, o.st, o.opts.BatchSize)

		if reason := o.selectingStop(export, cands, batch); reason != "" {
			o.report.StopReason = reason
			if reason == StopMaxRounds {
				return nil
			}
			return o.closeRound(items)
		}
		o.estimateBudget(len(batch))

		o.logger.Info().
			Int("round", o.st.CurrentRound).
			Int("clusters", len(export.Communities)).
			Int("eligible", len(cands)).
			Int("selected", len(batch)).
			Int("resolved", len(o.st.CommunitiesResolved)).
			Msg("Round started")

		for _, sel := range batch {
			if err := o.process(ctx, sel); err != nil {
				if errors.Is(err, errBudgetExceeded) {
					o.report.StopReason = StopBudget
					o.logger.Warn().Dur("elapsed", o.now().Sub(o.start)).Dur("budget", o.budget.Limit).Msg("Runtime budget exceeded, stopping")
					return nil
				}
				return err
			}
		}

		// The export holds the active count at partition time, which stays
		// correct when a resumed round already applied merges.
		prevActive := export.Metadata.TotalItems
		prevComms := len(export.Communities)

		if items, err = o.deps.Store.Items(ctx); err != nil {
			return &StoreError{Op: "read items", Err: err}
		}
		entry := model.ProgressEntry{Round: o.st.CurrentRound}
		o.st.AdvanceRound()
		if export, err = o.partition(items); err != nil {
			return err
		}
		entry.ItemsDeltaPct = delta(prevActive, countActive(items))
		entry.CommsDeltaPct = delta(prevComms, len(export.Communities))
		o.st.ProgressHistory = append(o.st.ProgressHistory, entry)
		o.report.RoundsCompleted++
		if err := o.checkpoint(); err != nil {
			return err
		}

		o.logger.Info().
			Int("round", entry.Round).
			Float64("items_delta_pct", entry.ItemsDeltaPct).
			Float64("comms_delta_pct", entry.CommsDeltaPct).
			Int("next_clusters", len(export.Communities)).
			Msg("Round scored")

		eligible := len(candidates(export, model.IndexItems(items), o.st, o.opts.ProcessOversized))
		if reason := scoringStop(export, eligible, o.st, o.opts.ImprovementThreshold); reason != "" {
			o.report.StopReason = reason
			return nil
		}
	}
}

// selectingStop covers a loop entered with nothing to do. A round whose
// selection is exhausted by resolved clusters goes on to be scored.
func (o *Orchestrator) selectingStop(export *model.Export, cands []model.Cluster, batch []Selected) string {
	if o.st.CurrentRound > o.st.MaxRounds {
		return StopMaxRounds
	}
	if len(batch) > 0 || len(o.st.CommunitiesResolved) > 0 {
		return ""
	}
	if len(export.Communities) == 0 {
		return StopEmptyGraph
	}
	if len(cands) == 0 {
		return StopNoEligibleWork
	}
	return ""
}

// closeRound ends a round that had nothing to adjudicate. The next round's
// export is written so the advanced state stays resumable.
func (o *Orchestrator) closeRound(items []model.Item) error {
	o.st.AdvanceRound()
	if _, err := o.partition(items); err != nil {
		return err
	}
	return o.checkpoint()
}

func (o *Orchestrator) estimateBudget(selected int) {
	if o.budget.Limit > 0 || o.opts.SafetyMultiplier <= 0 || o.opts.PerCall <= 0 {
		return
	}
	calls := o.opts.AnticipatedCalls
	if calls <= 0 {
		calls = selected * (o.st.MaxRounds - o.st.CurrentRound + 1)
	}
	o.budget.Limit = EstimateBudget(o.opts.PerCall, calls, o.opts.SafetyMultiplier)
	o.logger.Info().Int("anticipated_calls", calls).Dur("budget", o.budget.Limit).Msg("Estimated runtime budget")
}

// resume loads the checkpoint. It returns the round's export when the
// state is resumable, or nil with a fresh state.
func (o *Orchestrator) resume() (*model.Export, error) {
	st, err := o.deps.State.Load()
	switch {
	case errors.Is(err, state.ErrNoState):
		o.st = model.NewRoundState(uuid.New().String(), o.opts.MaxRounds)
		return nil, nil
	case err != nil:
		return nil, err
	}
	st.MaxRounds = o.opts.MaxRounds

	path := community.ExportPath(o.opts.WorkDir, st.CurrentRound)
	sum, sumErr := common.FileChecksum(path)
	if sumErr == nil && st.InputChecksum != "" && sum == st.InputChecksum {
		export, err := community.ReadExport(path)
		if err != nil {
			return nil, err
		}
		o.st = st
		o.report.Resumed = true
		o.logger.Info().
			Str("run_id", st.RunID).
			Int("round", st.CurrentRound).
			Int("resolved", len(st.CommunitiesResolved)).
			Msg("Resuming from checkpoint")
		return export, nil
	}

	if !o.opts.Restart {
		return nil, fmt.Errorf("%w: %s (run with restart to discard the state)", ErrChecksumMismatch, path)
	}
	o.logger.Warn().Str("run_id", st.RunID).Msg("Discarding mismatched round state")
	if !o.opts.DryRun {
		if err := o.deps.State.Discard(); err != nil {
			return nil, &StoreError{Op: "discard state", Err: err}
		}
	}
	o.st = model.NewRoundState(uuid.New().String(), o.opts.MaxRounds)
	return nil, nil
}

func (o *Orchestrator) autoDedup(ctx context.Context, items []model.Item) ([]model.Item, error) {
	if o.deps.AutoDedup == nil || o.st.AutoDedupDone || o.st.CurrentRound != 1 {
		return items, nil
	}
	res, err := o.deps.AutoDedup.Run(ctx, items, o.deps.Builder.Edges(items, 0), o.opts.DryRun)
	if err != nil {
		return nil, &StoreError{Op: "auto-dedup", Err: err}
	}
	o.st.AutoDedupDone = true
	o.report.AutoDedupMerges = res.Merged
	if o.opts.DryRun {
		for _, m := range res.Merges {
			o.report.PlannedActions = append(o.report.PlannedActions, PlannedAction{EntryID: m.Src, Action: model.ActionMerge, TargetID: m.Anchor})
		}
		return items, nil
	}
	if res.Merged == 0 {
		return items, nil
	}
	items, err = o.deps.Store.Items(ctx)
	if err != nil {
		return nil, &StoreError{Op: "read items", Err: err}
	}
	return items, nil
}

// partition rebuilds the graph from the cached neighbors, detects clusters
// for the current round and writes the round's export.
func (o *Orchestrator) partition(items []model.Item) (*model.Export, error) {
	g := o.deps.Builder.Rebuild(items)
	export, err := o.deps.Detector.Detect(g)
	if err != nil {
		return nil, fmt.Errorf("failed to detect clusters: %w", err)
	}
	export.Metadata.MinThreshold = o.deps.Builder.Options().MinThreshold
	export.Metadata.Round = o.st.CurrentRound

	if o.opts.DryRun {
		return export, nil
	}
	path := community.ExportPath(o.opts.WorkDir, o.st.CurrentRound)
	if err := community.WriteExport(path, export); err != nil {
		return nil, &StoreError{Op: "write export", Err: err}
	}
	sum, err := common.FileChecksum(path)
	if err != nil {
		return nil, &StoreError{Op: "checksum export", Err: err}
	}
	o.st.InputChecksum = sum
	return export, nil
}

func (o *Orchestrator) checkpoint() error {
	if o.opts.DryRun {
		return nil
	}
	if err := o.deps.State.Save(o.st); err != nil {
		return &StoreError{Op: "checkpoint", Err: err}
	}
	return nil
}

func (o *Orchestrator) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	o.report.Warnings = append(o.report.Warnings, msg)
	o.logger.Warn().Msg(msg)
}

func (o *Orchestrator) finish() {
	r := o.report
	r.FinishedAt = o.now()
	r.BudgetSeconds = o.budget.Limit.Seconds()
	if o.st != nil {
		r.CurrentRound = o.st.CurrentRound
		r.ProgressHistory = append(r.ProgressHistory[:0], o.st.ProgressHistory...)
	}
	o.logger.Info().
		Str("run_id", r.RunID).
		Str("stop_reason", r.StopReason).
		Int("rounds_completed", r.RoundsCompleted).
		Int("adjudicated", r.ClustersAdjudicated).
		Int("merges", r.MergesApplied).
		Int("manual_review", len(r.ManualReview)).
		Dur("elapsed", r.Elapsed()).
		Msg("Round loop stopped")

	if o.opts.DryRun || o.opts.ReportPath == "" {
		return
	}
	if err := common.WriteJSONAtomic(o.opts.ReportPath, r); err != nil {
		o.logger.Error().Err(err).Str("path", o.opts.ReportPath).Msg("Failed to write report")
	}
}
