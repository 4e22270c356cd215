package model

import "time"

type DecisionKind string

const (
	KindMergeAll     DecisionKind = "merge_all"
	KindMergeSubset  DecisionKind = "merge_subset"
	KindKeepSeparate DecisionKind = "keep_separate"
	KindManualReview DecisionKind = "manual_review"
)

// ParseDecisionKind reports whether s names one of the four decisions.
func ParseDecisionKind(s string) (DecisionKind, bool) {
	switch k := DecisionKind(s); k {
	case KindMergeAll, KindMergeSubset, KindKeepSeparate, KindManualReview:
		return k, true
	}
	return "", false
}

// MergePair folds Src into Dst.
type MergePair struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// Decision is a validated oracle verdict. The set of implementations is
// closed: MergeAll, MergeSubset, KeepSeparate and ManualReview.
type Decision interface {
	Kind() DecisionKind
	Merges() []MergePair
	Note() string
	decision()
}

type MergeAll struct {
	Pairs []MergePair
	Notes string
}

type MergeSubset struct {
	Pairs []MergePair
	Notes string
}

type KeepSeparate struct {
	Notes string
}

type ManualReview struct {
	Notes string
}

func (d MergeAll) Kind() DecisionKind  { return KindMergeAll }
func (d MergeAll) Merges() []MergePair { return d.Pairs }
func (d MergeAll) Note() string        { return d.Notes }
func (MergeAll) decision()             {}

func (d MergeSubset) Kind() DecisionKind  { return KindMergeSubset }
func (d MergeSubset) Merges() []MergePair { return d.Pairs }
func (d MergeSubset) Note() string        { return d.Notes }
func (MergeSubset) decision()             {}

func (d KeepSeparate) Kind() DecisionKind { return KindKeepSeparate }
func (KeepSeparate) Merges() []MergePair  { return nil }
func (d KeepSeparate) Note() string       { return d.Notes }
func (KeepSeparate) decision()            {}

func (d ManualReview) Kind() DecisionKind { return KindManualReview }
func (ManualReview) Merges() []MergePair  { return nil }
func (d ManualReview) Note() string       { return d.Notes }
func (ManualReview) decision()            {}

type Action string

const (
	ActionMerge        Action = "merge"
	ActionManualReview Action = "manual_review"
	ActionKeepSeparate Action = "keep_separate"
)

// DecisionRecord is one append-only log entry per item transition.
type DecisionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	EntryID   string    `json:"entry_id"`
	Action    Action    `json:"action"`
	TargetID  string    `json:"target_id,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}
