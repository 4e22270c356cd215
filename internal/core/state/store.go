package state

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/agenthands/roundup/internal/core/common"
	"github.com/agenthands/roundup/internal/core/model"
)

var ErrNoState = errors.New("no saved round state")

// Store persists the RoundState checkpoint. Every Save is atomic.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load returns ErrNoState when no checkpoint exists.
func (s *Store) Load() (*model.RoundState, error) {
	var st model.RoundState
	if err := common.ReadJSON(s.Path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("failed to load round state: %w", err)
	}
	if st.CommunitiesResolved == nil {
		st.CommunitiesResolved = []string{}
	}
	if st.ProgressHistory == nil {
		st.ProgressHistory = []model.ProgressEntry{}
	}
	return &st, nil
}

func (s *Store) Save(st *model.RoundState) error {
	st.UpdatedAt = time.Now().UTC()
	if err := common.WriteJSONAtomic(s.Path, st); err != nil {
		return fmt.Errorf("failed to save round state: %w", err)
	}
	return nil
}

// Discard removes the checkpoint so the next run starts fresh.
func (s *Store) Discard() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to discard round state: %w", err)
	}
	return nil
}
