package rounds

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/agenthands/roundup/internal/core/community"
	"github.com/agenthands/roundup/internal/core/dedupe"
	"github.com/agenthands/roundup/internal/core/graph"
	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/oracle"
	"github.com/agenthands/roundup/internal/core/state"
	"github.com/agenthands/roundup/internal/driver"
)

const (
	keepSeparate = `{"decision": "keep_separate", "notes": "distinct"}`
	mergeA       = `{"decision": "merge_all", "merges": [["A2", "A1"], ["A3", "A1"]]}`
	mergeB       = `{"decision": "merge_all", "merges": [["B2", "B1"]]}`
	mergeC       = `{"decision": "merge_all", "merges": [["C2", "C1"]]}`
)

// scriptedOracle replies per cluster id. The last reply for a cluster
// repeats; clusters without a script get Default.
type scriptedOracle struct {
	Replies map[string][]string
	Default string
	Err     error
	OnCall  func(req oracle.Request) error
	Calls   []string
}

func (o *scriptedOracle) Adjudicate(ctx context.Context, req oracle.Request) (string, error) {
	o.Calls = append(o.Calls, req.ClusterID)
	if o.OnCall != nil {
		if err := o.OnCall(req); err != nil {
			return "", err
		}
	}
	if o.Err != nil {
		return "", o.Err
	}
	queue := o.Replies[req.ClusterID]
	switch len(queue) {
	case 0:
		return o.Default, nil
	case 1:
		return queue[0], nil
	}
	o.Replies[req.ClusterID] = queue[1:]
	return queue[0], nil
}

// hidingStore drops one id from GetItems to simulate a store row that
// disappeared after the partition was computed.
type hidingStore struct {
	*driver.MemoryStore
	hide string
}

func (s *hidingStore) GetItems(ctx context.Context, ids []string) (map[string]model.Item, error) {
	out, err := s.MemoryStore.GetItems(ctx, ids)
	delete(out, s.hide)
	return out, err
}

type OrchestratorSuite struct {
	suite.Suite
	dir   string
	store *driver.MemoryStore
	state *state.Store
	log   *state.DecisionLog
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func bugItem(id string) model.Item {
	return model.Item{ID: id, Category: "bug", Title: "issue " + id, Status: model.StatusActive}
}

func rec(src, dst string, score float64) graph.NeighborRecord {
	return graph.NeighborRecord{Src: src, Dst: dst, EmbedScore: score, SrcCategory: "bug", DstCategory: "bug"}
}

// The default fixture partitions into COMM-001 {A1 A2 A3}, COMM-002 {B1 B2}
// and COMM-003 {C1 C2}, in that priority order.
func (s *OrchestratorSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.state = state.NewStore(filepath.Join(s.dir, "state.json"))
	s.log = state.NewDecisionLog(filepath.Join(s.dir, "decisions.csv"))
	s.seed(
		[]string{"A1", "A2", "A3", "B1", "B2", "C1", "C2"},
		[]graph.NeighborRecord{
			rec("A1", "A2", 0.9), rec("A1", "A3", 0.9), rec("A2", "A3", 0.9),
			rec("B1", "B2", 0.85),
			rec("C1", "C2", 0.8),
		},
	)
}

func (s *OrchestratorSuite) seed(ids []string, records []graph.NeighborRecord) {
	items := make([]model.Item, len(ids))
	for i, id := range ids {
		items[i] = bugItem(id)
	}
	s.store = driver.NewMemoryStore(items...)
	cache := graph.NewNeighborCache(filepath.Join(s.dir, "neighbors.jsonl"))
	s.Require().NoError(cache.Write(graph.NewCacheKey("test-model", 10, 0.5, "v1"), records))
}

func (s *OrchestratorSuite) deps(orc oracle.Oracle, store driver.ItemStore) Deps {
	opts := graph.DefaultOptions()
	builder := graph.NewBuilder(nil, graph.NewNeighborCache(filepath.Join(s.dir, "neighbors.jsonl")), opts, zerolog.Nop())
	return Deps{
		Store:    store,
		Builder:  builder,
		Detector: community.NewDetector(nil, community.DefaultOptions(), nil, zerolog.Nop()),
		Oracle:   orc,
		Policy:   oracle.ZeroDelay(2),
		State:    s.state,
		Log:      s.log,
	}
}

func (s *OrchestratorSuite) options(mutate ...func(*Options)) Options {
	opts := DefaultOptions()
	opts.WorkDir = s.dir
	opts.ReportPath = filepath.Join(s.dir, "report.json")
	for _, m := range mutate {
		m(&opts)
	}
	return opts
}

func (s *OrchestratorSuite) run(ctx context.Context, orc oracle.Oracle, mutate ...func(*Options)) (*Report, error) {
	return New(s.deps(orc, s.store), s.options(mutate...), zerolog.Nop()).Run(ctx)
}

func (s *OrchestratorSuite) status(id string) model.ItemStatus {
	items, err := s.store.GetItems(context.Background(), []string{id})
	s.Require().NoError(err)
	return items[id].Status
}

func (s *OrchestratorSuite) loadState() *model.RoundState {
	st, err := s.state.Load()
	s.Require().NoError(err)
	return st
}

// interruptAt runs until the oracle is asked about clusterID, then cancels.
func (s *OrchestratorSuite) interruptAt(clusterID string) {
	s.interruptWith(&scriptedOracle{Default: keepSeparate}, clusterID)
}

func (s *OrchestratorSuite) interruptWith(orc *scriptedOracle, clusterID string, mutate ...func(*Options)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orc.OnCall = func(req oracle.Request) error {
		if req.ClusterID == clusterID {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	report, err := s.run(ctx, orc, mutate...)
	s.Require().ErrorIs(err, context.Canceled)
	s.Equal(StopInterrupted, report.StopReason)
}

func (s *OrchestratorSuite) TestMergeEverythingEmptiesGraph() {
	orc := &scriptedOracle{Replies: map[string][]string{
		"COMM-001": {mergeA},
		"COMM-002": {mergeB},
		"COMM-003": {mergeC},
	}}

	report, err := s.run(context.Background(), orc)
	s.Require().NoError(err)

	s.Equal(StopEmptyGraph, report.StopReason)
	s.Equal([]string{"COMM-001", "COMM-002", "COMM-003"}, orc.Calls)
	s.Equal(4, report.MergesApplied)
	s.Equal(3, report.ClustersAdjudicated)
	s.Equal(1, report.RoundsCompleted)

	for _, id := range []string{"A2", "A3", "B2", "C2"} {
		s.Equal(model.StatusSuperseded, s.status(id), id)
	}
	s.Equal(model.StatusActive, s.status("A1"))

	st := s.loadState()
	s.Equal(2, st.CurrentRound)
	s.Empty(st.CommunitiesResolved)
	s.Require().Len(st.ProgressHistory, 1)
	s.InDelta(4.0/7.0, st.ProgressHistory[0].ItemsDeltaPct, 1e-9)
	s.InDelta(1.0, st.ProgressHistory[0].CommsDeltaPct, 1e-9)

	logged, err := s.log.ReadAll()
	s.Require().NoError(err)
	s.Len(logged, 4)
	s.Equal("A1", logged[0].TargetID)

	s.FileExists(community.ExportPath(s.dir, 1))
	s.FileExists(community.ExportPath(s.dir, 2))
	s.FileExists(filepath.Join(s.dir, "report.json"))
}

func (s *OrchestratorSuite) TestMergeChainResolvesToSurvivor() {
	orc := &scriptedOracle{
		Default: keepSeparate,
		Replies: map[string][]string{
			"COMM-001": {`{"decision": "merge_all", "merges": [["A3", "A2"], ["A2", "A1"]]}`},
		},
	}
	_, err := s.run(context.Background(), orc, func(o *Options) { o.MaxRounds = 1 })
	s.Require().NoError(err)

	items, err := s.store.GetItems(context.Background(), []string{"A2", "A3"})
	s.Require().NoError(err)
	s.Equal("A1", items["A3"].SupersededBy)
	s.Equal("A1", items["A2"].SupersededBy)
}

func (s *OrchestratorSuite) TestKeepSeparateStopsOnZeroProgress() {
	orc := &scriptedOracle{Default: keepSeparate}

	report, err := s.run(context.Background(), orc)
	s.Require().NoError(err)

	s.Equal(StopZeroProgress, report.StopReason)
	s.Equal(0, report.MergesApplied)
	records, err := s.store.Records(context.Background())
	s.Require().NoError(err)
	s.Len(records, 7, "one keep_separate record per member")
	for _, r := range records {
		s.Equal(model.ActionKeepSeparate, r.Action)
	}
}

func (s *OrchestratorSuite) TestMaxRounds() {
	orc := &scriptedOracle{
		Default: keepSeparate,
		Replies: map[string][]string{
			"COMM-001": {`{"decision": "merge_subset", "merges": [["A3", "A1"]]}`},
		},
	}

	report, err := s.run(context.Background(), orc, func(o *Options) { o.MaxRounds = 1 })
	s.Require().NoError(err)

	s.Equal(StopMaxRounds, report.StopReason)
	s.Equal(2, report.CurrentRound)
	s.Equal(1, report.MergesApplied)
	s.Require().Len(report.ProgressHistory, 1)
	s.InDelta(1.0/7.0, report.ProgressHistory[0].ItemsDeltaPct, 1e-9)
	s.Zero(report.ProgressHistory[0].CommsDeltaPct)
}

func (s *OrchestratorSuite) TestBatchSizeLimitsSelection() {
	orc := &scriptedOracle{Default: keepSeparate}
	_, err := s.run(context.Background(), orc, func(o *Options) { o.BatchSize = 1 })
	s.Require().NoError(err)
	s.Equal([]string{"COMM-001"}, orc.Calls)
}

func (s *OrchestratorSuite) TestResumeSkipsResolvedClusters() {
	s.interruptAt("COMM-003")

	st := s.loadState()
	s.Equal(1, st.CurrentRound)
	s.Equal([]string{"COMM-001", "COMM-002"}, st.CommunitiesResolved)
	s.Equal(1, st.LastCommunityIndex)

	orc := &scriptedOracle{Default: keepSeparate}
	report, err := s.run(context.Background(), orc)
	s.Require().NoError(err)

	s.True(report.Resumed)
	s.Equal(st.RunID, report.RunID)
	s.Equal([]string{"COMM-003"}, orc.Calls)
}

func (s *OrchestratorSuite) TestResumedRoundCountsEarlierMerges() {
	s.interruptWith(&scriptedOracle{
		Default: keepSeparate,
		Replies: map[string][]string{
			"COMM-001": {`{"decision": "merge_subset", "merges": [["A3", "A1"]]}`},
		},
	}, "COMM-002")
	s.Equal(model.StatusSuperseded, s.status("A3"))

	orc := &scriptedOracle{Default: keepSeparate}
	report, err := s.run(context.Background(), orc)
	s.Require().NoError(err)

	s.True(report.Resumed)
	s.Equal([]string{"COMM-002", "COMM-003"}, orc.Calls[:2])
	s.Require().Len(report.ProgressHistory, 2, "round 1 made progress, so round 2 runs")
	s.InDelta(1.0/7.0, report.ProgressHistory[0].ItemsDeltaPct, 1e-9)
	s.Zero(report.ProgressHistory[0].CommsDeltaPct)
	s.Equal(StopZeroProgress, report.StopReason)
}

func (s *OrchestratorSuite) TestResumeKeepsManualReviewClusterInBatch() {
	batchOfTwo := func(o *Options) { o.BatchSize = 2 }
	s.interruptWith(&scriptedOracle{
		Default: keepSeparate,
		Replies: map[string][]string{
			"COMM-001": {`{"decision": "manual_review", "notes": "unsure"}`},
		},
	}, "COMM-002", batchOfTwo)
	s.Equal(model.StatusManualReview, s.status("A1"))

	orc := &scriptedOracle{Default: keepSeparate}
	_, err := s.run(context.Background(), orc, batchOfTwo, func(o *Options) { o.MaxRounds = 1 })
	s.Require().NoError(err)

	s.Equal([]string{"COMM-002"}, orc.Calls, "the resolved cluster still counts against the batch")
	st := s.loadState()
	s.Equal(2, st.CurrentRound)
}

func (s *OrchestratorSuite) TestEmptyGraphAtStartAdvancesRound() {
	s.seed([]string{"A1", "B1"}, nil)

	orc := &scriptedOracle{Default: keepSeparate}
	report, err := s.run(context.Background(), orc)
	s.Require().NoError(err)

	s.Equal(StopEmptyGraph, report.StopReason)
	s.Empty(orc.Calls)
	s.Zero(report.RoundsCompleted)
	st := s.loadState()
	s.Equal(2, st.CurrentRound)
	s.Empty(st.CommunitiesResolved)
	s.Empty(st.ProgressHistory)
	s.FileExists(community.ExportPath(s.dir, 2))

	report, err = s.run(context.Background(), orc)
	s.Require().NoError(err, "the advanced state must resume without a checksum mismatch")
	s.True(report.Resumed)
	s.Equal(StopEmptyGraph, report.StopReason)
	s.Equal(3, s.loadState().CurrentRound)
}

func (s *OrchestratorSuite) TestChecksumMismatch() {
	s.interruptAt("COMM-002")

	path := community.ExportPath(s.dir, 1)
	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Require().NoError(os.WriteFile(path, append(data, '\n'), 0o644))

	orc := &scriptedOracle{Default: keepSeparate}
	_, err = s.run(context.Background(), orc)
	s.ErrorIs(err, ErrChecksumMismatch)
	s.Empty(orc.Calls)

	previous := s.loadState().RunID
	report, err := s.run(context.Background(), orc, func(o *Options) { o.Restart = true })
	s.Require().NoError(err)
	s.False(report.Resumed)
	s.NotEqual(previous, report.RunID)
	s.Equal([]string{"COMM-001", "COMM-002", "COMM-003"}, orc.Calls)
}

func (s *OrchestratorSuite) TestRuntimeBudgetExceeded() {
	s.interruptAt("COMM-002")
	before := s.loadState()

	orc := &scriptedOracle{Default: keepSeparate}
	report, err := s.run(context.Background(), orc, func(o *Options) {
		o.MaxRuntime = time.Second
		o.PerCall = 20 * time.Second
	})
	s.Require().NoError(err)

	s.Equal(StopBudget, report.StopReason)
	s.Empty(orc.Calls)
	s.Zero(report.ClustersAdjudicated)
	after := s.loadState()
	s.Equal(before.CommunitiesResolved, after.CommunitiesResolved)
	s.Equal(before.CurrentRound, after.CurrentRound)
}

func (s *OrchestratorSuite) TestEstimatedBudget() {
	orc := &scriptedOracle{Default: keepSeparate}
	report, err := s.run(context.Background(), orc, func(o *Options) {
		o.PerCall = 10 * time.Second
		o.SafetyMultiplier = 1
	})
	s.Require().NoError(err)
	s.Equal(150.0, report.BudgetSeconds, "3 clusters x 5 rounds x 10s")
	s.Len(orc.Calls, 3)
}

func (s *OrchestratorSuite) TestExhaustedRetriesRouteToManualReview() {
	orc := &scriptedOracle{Err: errors.New("upstream 503")}

	report, err := s.run(context.Background(), orc)
	s.Require().NoError(err)

	s.Len(orc.Calls, 9, "three attempts per cluster")
	s.Equal([]string{"COMM-001", "COMM-002", "COMM-003"}, report.ManualReview)
	for _, id := range []string{"A1", "A2", "A3", "B1", "B2", "C1", "C2"} {
		s.Equal(model.StatusManualReview, s.status(id), id)
	}
	s.Equal(StopEmptyGraph, report.StopReason)
	s.NotEmpty(report.Warnings)
}

func (s *OrchestratorSuite) TestMalformedReplyIsRetried() {
	orc := &scriptedOracle{
		Default: keepSeparate,
		Replies: map[string][]string{
			"COMM-001": {"I believe these are duplicates.", mergeA},
		},
	}

	report, err := s.run(context.Background(), orc, func(o *Options) { o.MaxRounds = 1 })
	s.Require().NoError(err)
	s.Equal([]string{"COMM-001", "COMM-001", "COMM-002", "COMM-003"}, orc.Calls)
	s.Equal(2, report.MergesApplied)
	s.Empty(report.ManualReview)
}

func (s *OrchestratorSuite) TestMissingMemberSkipsCluster() {
	orc := &scriptedOracle{Default: keepSeparate}
	store := &hidingStore{MemoryStore: s.store, hide: "B2"}

	report, err := New(s.deps(orc, store), s.options(), zerolog.Nop()).Run(context.Background())
	s.Require().NoError(err)

	s.Equal([]string{"COMM-001", "COMM-003"}, orc.Calls)
	s.Contains(report.Warnings[0], "COMM-002 skipped")
}

func (s *OrchestratorSuite) TestStoreFailureIsFatal() {
	s.store.FailApply = errors.New("disk full")
	orc := &scriptedOracle{Default: keepSeparate}

	report, err := s.run(context.Background(), orc)

	var storeErr *StoreError
	s.Require().ErrorAs(err, &storeErr)
	s.Equal(StopStoreError, report.StopReason)
	s.Equal([]string{"COMM-001"}, orc.Calls)
	s.Empty(s.loadState().CommunitiesResolved)
	s.FileExists(filepath.Join(s.dir, "report.json"))
}

func (s *OrchestratorSuite) TestDryRunWritesNothing() {
	orc := &scriptedOracle{Replies: map[string][]string{
		"COMM-001": {mergeA},
		"COMM-002": {mergeB},
		"COMM-003": {mergeC},
	}}

	report, err := s.run(context.Background(), orc, func(o *Options) { o.DryRun = true })
	s.Require().NoError(err)

	s.True(report.DryRun)
	s.Len(report.PlannedActions, 4)
	s.Equal(PlannedAction{ClusterID: "COMM-001", EntryID: "A2", Action: model.ActionMerge, TargetID: "A1"}, report.PlannedActions[0])
	s.Equal(StopZeroProgress, report.StopReason)
	s.Equal(model.StatusActive, s.status("A2"))

	records, err := s.store.Records(context.Background())
	s.Require().NoError(err)
	s.Empty(records)
	s.NoFileExists(filepath.Join(s.dir, "state.json"))
	s.NoFileExists(filepath.Join(s.dir, "decisions.csv"))
	s.NoFileExists(filepath.Join(s.dir, "report.json"))
	s.NoFileExists(community.ExportPath(s.dir, 1))
}

func (s *OrchestratorSuite) TestAutoDedupRunsBeforeFirstRound() {
	s.seed(
		[]string{"A1", "A2", "A3", "D1", "D2"},
		[]graph.NeighborRecord{
			rec("A1", "A2", 0.9), rec("A1", "A3", 0.9), rec("A2", "A3", 0.9),
			rec("D1", "D2", 0.99),
		},
	)
	orc := &scriptedOracle{Default: keepSeparate}
	deps := s.deps(orc, s.store)
	deps.AutoDedup = dedupe.NewEngine(s.store, s.log, dedupe.Options{Threshold: 0.97, PerCategory: true}, zerolog.Nop())

	report, err := New(deps, s.options(), zerolog.Nop()).Run(context.Background())
	s.Require().NoError(err)

	s.Equal(1, report.AutoDedupMerges)
	s.Equal(model.StatusSuperseded, s.status("D2"))
	s.Equal([]string{"COMM-001"}, orc.Calls)
	s.True(s.loadState().AutoDedupDone)
}

func (s *OrchestratorSuite) TestIdempotentMerge() {
	o := New(s.deps(&scriptedOracle{}, s.store), s.options(), zerolog.Nop())
	o.report = newReport(false, time.Now())
	cluster := model.Cluster{ID: "COMM-001", Members: []string{"A1", "A2"}}
	decision := model.MergeAll{Pairs: []model.MergePair{{Src: "A2", Dst: "A1"}}}

	ctx := context.Background()
	s.Require().NoError(o.apply(ctx, cluster, cluster.Members, decision))
	s.Require().NoError(o.apply(ctx, cluster, cluster.Members, decision))

	s.Equal(model.StatusSuperseded, s.status("A2"))
	s.Equal(1, o.report.MergesApplied)
	records, err := s.store.Records(ctx)
	s.Require().NoError(err)
	s.Len(records, 1)
	logged, err := s.log.ReadAll()
	s.Require().NoError(err)
	s.Len(logged, 1)
}

func (s *OrchestratorSuite) TestResolveChainsDropsCycles() {
	o := New(s.deps(&scriptedOracle{}, s.store), s.options(), zerolog.Nop())
	o.report = newReport(false, time.Now())

	pairs := o.resolveChains("COMM-009", []model.MergePair{
		{Src: "A", Dst: "B"}, {Src: "B", Dst: "A"},
		{Src: "C", Dst: "D"}, {Src: "D", Dst: "E"},
	})
	s.Equal([]model.MergePair{{Src: "C", Dst: "E"}, {Src: "D", Dst: "E"}}, pairs)
	s.Len(o.report.Warnings, 2)
}
