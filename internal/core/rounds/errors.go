package rounds

import (
	"errors"
	"fmt"
)

// ErrChecksumMismatch means the saved state was taken against a different
// cluster export than the one on disk. Restart discards the state.
var ErrChecksumMismatch = errors.New("round state does not match the cluster export")

var errBudgetExceeded = errors.New(StopBudget)

// StoreError is a failed write to the item store, the decision log or a
// checkpoint. The loop aborts on it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
