package rounds

import (
	"time"

	"github.com/agenthands/roundup/internal/core/model"
)

const (
	StopEmptyGraph     = "empty graph"
	StopNoEligibleWork = "no eligible work"
	StopZeroProgress   = "zero progress"
	StopConvergence    = "convergence"
	StopMaxRounds      = "max rounds"
	StopBudget         = "runtime budget exceeded"
	StopStoreError     = "store error"
	StopInterrupted    = "interrupted"
)

// PlannedAction is a transition the run decided on. In a dry run nothing
// was written.
type PlannedAction struct {
	ClusterID string       `json:"cluster_id,omitempty"`
	EntryID   string       `json:"entry_id"`
	Action    model.Action `json:"action"`
	TargetID  string       `json:"target_id,omitempty"`
}

// Report summarizes one invocation of the round loop. It is produced for
// every stop reason, including store failures.
type Report struct {
	RunID               string                `json:"run_id"`
	StopReason          string                `json:"stop_reason"`
	StartRound          int                   `json:"start_round"`
	CurrentRound        int                   `json:"current_round"`
	RoundsCompleted     int                   `json:"rounds_completed"`
	Resumed             bool                  `json:"resumed"`
	DryRun              bool                  `json:"dry_run"`
	ClustersAdjudicated int                   `json:"clusters_adjudicated"`
	OracleCalls         int                   `json:"oracle_calls"`
	MergesApplied       int                   `json:"merges_applied"`
	AutoDedupMerges     int                   `json:"auto_dedup_merges"`
	ManualReview        []string              `json:"manual_review"`
	Warnings            []string              `json:"warnings"`
	ProgressHistory     []model.ProgressEntry `json:"progress_history"`
	PlannedActions      []PlannedAction       `json:"planned_actions,omitempty"`
	BudgetSeconds       float64               `json:"budget_seconds,omitempty"`
	StartedAt           time.Time             `json:"started_at"`
	FinishedAt          time.Time             `json:"finished_at"`
}

func newReport(dryRun bool, start time.Time) *Report {
	return &Report{
		DryRun:          dryRun,
		ManualReview:    []string{},
		Warnings:        []string{},
		ProgressHistory: []model.ProgressEntry{},
		StartedAt:       start,
	}
}

func (r *Report) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) queueManualReview(clusterID string) {
	for _, id := range r.ManualReview {
		if id == clusterID {
			return
		}
	}
	r.ManualReview = append(r.ManualReview, clusterID)
}
