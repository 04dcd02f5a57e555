package session

import (
	"sync"

	"github.com/user/toolchat/internal/types"
)

// Transcript is an append-only, ordered list of turns.
type Transcript struct {
	mu    sync.RWMutex
	turns []types.Turn
}

// Append validates every turn and appends them together. If any turn is
// invalid nothing is appended.
func (t *Transcript) Append(turns ...types.Turn) error {
	for _, turn := range turns {
		if err := turn.Validate(); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turns...)
	return nil
}

// Snapshot returns a copy of the turns in insertion order.
func (t *Transcript) Snapshot() []types.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
