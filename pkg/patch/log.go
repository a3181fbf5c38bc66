package patch

import (
	"sync"
	"time"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// Log is the append-only modification log backing undo. Entries are kept in
// the order they were recorded; Pop always returns the newest.
type Log struct {
	mu      sync.Mutex
	entries []types.FileModification
	now     func() time.Time
}

func NewLog() *Log {
	return &Log{
		entries: make([]types.FileModification, 0),
		now:     time.Now,
	}
}

// Record appends a modification, filling in ID, Timestamp and Diff when
// they are unset.
func (l *Log) Record(mod types.FileModification) types.FileModification {
	if mod.ID == "" {
		mod.ID = types.GenerateModificationID()
	}
	if mod.Diff == "" {
		if d, err := GenerateDiff(mod.OldContent, mod.NewContent); err == nil {
			mod.Diff = d.Text
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if mod.Timestamp.IsZero() {
		mod.Timestamp = l.now()
	}
	l.entries = append(l.entries, mod)
	return mod
}

// Pop removes and returns the newest modification.
func (l *Log) Pop() (types.FileModification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return types.FileModification{}, false
	}
	last := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return last, true
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []types.FileModification {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]types.FileModification, len(l.entries))
	copy(result, l.entries)
	return result
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
