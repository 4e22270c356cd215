package state

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agenthands/roundup/internal/core/model"
)

var logHeader = []string{"timestamp", "user", "entry_id", "action", "target_id", "was_correct", "notes"}

// DecisionLog is the append-only CSV audit trail. was_correct is always
// written empty; it is filled in by human review.
type DecisionLog struct {
	Path string
	mu   sync.Mutex
}

func NewDecisionLog(path string) *DecisionLog {
	return &DecisionLog{Path: path}
}

func (l *DecisionLog) Append(records ...model.DecisionRecord) error {
	if len(records) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create decision log directory: %w", err)
	}
	needHeader := false
	if info, err := os.Stat(l.Path); errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0) {
		needHeader = true
	}

	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open decision log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(logHeader); err != nil {
			return fmt.Errorf("failed to write decision log header: %w", err)
		}
	}
	for _, r := range records {
		row := []string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.User,
			r.EntryID,
			string(r.Action),
			r.TargetID,
			"",
			r.Notes,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write decision record for %s: %w", r.EntryID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush decision log: %w", err)
	}
	return f.Sync()
}

// ReadAll parses the log back into records.
func (l *DecisionLog) ReadAll() ([]model.DecisionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open decision log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(logHeader)

	var out []model.DecisionRecord
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse decision log: %w", err)
		}
		if first {
			first = false
			if row[0] == logHeader[0] {
				continue
			}
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q in decision log: %w", row[0], err)
		}
		out = append(out, model.DecisionRecord{
			Timestamp: ts,
			User:      row[1],
			EntryID:   row[2],
			Action:    model.Action(row[3]),
			TargetID:  row[4],
			Notes:     row[6],
		})
	}
	return out, nil
}
