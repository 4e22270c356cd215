package rounds

import (
	"time"

	"github.com/agenthands/roundup/internal/core/model"
)

// delta is the relative shrink from prev to curr. A zero baseline yields 0.
func delta(prev, curr int) float64 {
	if prev == 0 {
		return 0
	}
	return float64(prev-curr) / float64(prev)
}

func zeroProgress(e model.ProgressEntry) bool {
	return e.ItemsDeltaPct == 0 && e.CommsDeltaPct == 0
}

func belowThreshold(e model.ProgressEntry, threshold float64) bool {
	return e.ItemsDeltaPct < threshold && e.CommsDeltaPct < threshold
}

// converged reports whether the last two rounds both shrank less than
// threshold on items and on clusters.
func converged(history []model.ProgressEntry, threshold float64) bool {
	n := len(history)
	if n < 2 {
		return false
	}
	return belowThreshold(history[n-1], threshold) && belowThreshold(history[n-2], threshold)
}

// scoringStop evaluates the stop conditions after a rebuild, in order.
// eligible is the number of clusters the next round could select.
func scoringStop(export *model.Export, eligible int, st *model.RoundState, threshold float64) string {
	switch {
	case len(export.Communities) == 0:
		return StopEmptyGraph
	case eligible == 0:
		return StopNoEligibleWork
	}
	if n := len(st.ProgressHistory); n > 0 {
		if zeroProgress(st.ProgressHistory[n-1]) {
			return StopZeroProgress
		}
		if converged(st.ProgressHistory, threshold) {
			return StopConvergence
		}
	}
	if st.CurrentRound > st.MaxRounds {
		return StopMaxRounds
	}
	return ""
}

// Budget is the cooperative wall-clock limit checked before each oracle call.
type Budget struct {
	Limit   time.Duration
	PerCall time.Duration
}

// EstimateBudget returns perCall * calls * multiplier.
func EstimateBudget(perCall time.Duration, calls int, multiplier float64) time.Duration {
	return time.Duration(float64(perCall) * float64(calls) * multiplier)
}

// Allows reports whether one more call fits after elapsed. A zero limit
// never expires.
func (b Budget) Allows(elapsed time.Duration) bool {
	if b.Limit <= 0 {
		return true
	}
	return elapsed+b.PerCall <= b.Limit
}
