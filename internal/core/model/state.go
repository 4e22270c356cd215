package model

import (
	"slices"
	"time"
)

type ProgressEntry struct {
	Round         int     `json:"round"`
	ItemsDeltaPct float64 `json:"items_delta_pct"`
	CommsDeltaPct float64 `json:"comms_delta_pct"`
}

// RoundState is the resumable checkpoint of a consolidation run.
type RoundState struct {
	RunID               string          `json:"run_id"`
	InputChecksum       string          `json:"input_checksum"`
	CurrentRound        int             `json:"current_round"`
	MaxRounds           int             `json:"max_rounds"`
	CommunitiesResolved []string        `json:"communities_resolved"`
	LastCommunityIndex  int             `json:"last_community_index"`
	ProgressHistory     []ProgressEntry `json:"progress_history"`
	AutoDedupDone       bool            `json:"auto_dedup_done"`
	StartedAt           time.Time       `json:"started_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func NewRoundState(runID string, maxRounds int) *RoundState {
	now := time.Now().UTC()
	return &RoundState{
		RunID:               runID,
		CurrentRound:        1,
		MaxRounds:           maxRounds,
		CommunitiesResolved: []string{},
		LastCommunityIndex:  -1,
		ProgressHistory:     []ProgressEntry{},
		StartedAt:           now,
		UpdatedAt:           now,
	}
}

func (s *RoundState) IsResolved(clusterID string) bool {
	return slices.Contains(s.CommunitiesResolved, clusterID)
}

// MarkResolved records a cluster as done for the current round.
func (s *RoundState) MarkResolved(clusterID string, index int) {
	if !s.IsResolved(clusterID) {
		s.CommunitiesResolved = append(s.CommunitiesResolved, clusterID)
	}
	s.LastCommunityIndex = index
}

// AdvanceRound moves to the next round and clears round-scoped fields.
func (s *RoundState) AdvanceRound() {
	s.CurrentRound++
	s.CommunitiesResolved = []string{}
	s.LastCommunityIndex = -1
	s.InputChecksum = ""
}
