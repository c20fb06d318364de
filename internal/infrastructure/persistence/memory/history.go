package memory

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
)

// HistoryStore is an append-only in-memory transition log
type HistoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []*workflow.LogEntry
	now     func() time.Time
}

// NewHistoryStore creates an empty log
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{now: time.Now}
}

func matches(e *workflow.LogEntry, entityType, entityID string, machineID int64) bool {
	return e.EntityType == entityType && e.EntityID == entityID && (machineID == 0 || e.MachineID == machineID)
}

func (h *HistoryStore) latestLocked(entityType, entityID string, machineID int64) *workflow.LogEntry {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if matches(h.entries[i], entityType, entityID, machineID) {
			return h.entries[i]
		}
	}
	return nil
}

func (h *HistoryStore) LatestEntry(ctx context.Context, entityType, entityID string, machineID int64) (*workflow.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	latest := h.latestLocked(entityType, entityID, machineID)
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

// AppendEntry appends when the entity's newest entry in the machine still has expectedSeq
func (h *HistoryStore) AppendEntry(ctx context.Context, entry *workflow.LogEntry, expectedSeq int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latestLocked(entry.EntityType, entry.EntityID, entry.MachineID).Sequence() != expectedSeq {
		return 0, workflow.ErrAppendConflict
	}

	h.nextID++
	c := entry.Clone()
	c.ID = h.nextID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = h.now()
	}
	h.entries = append(h.entries, c)
	return c.ID, nil
}

// History returns matching entries newest-first
func (h *HistoryStore) History(ctx context.Context, query workflow.HistoryQuery) ([]*workflow.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*workflow.LogEntry
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if !matches(e, query.EntityType, query.EntityID, query.MachineID) {
			continue
		}
		out = append(out, e.Clone())
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (h *HistoryStore) CountByMachine(ctx context.Context, machineID int64) (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var n int64
	for _, e := range h.entries {
		if e.MachineID == machineID {
			n++
		}
	}
	return n, nil
}

func (h *HistoryStore) DeleteByMachine(ctx context.Context, machineID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.MachineID != machineID {
			kept = append(kept, e)
		}
	}
	h.entries = kept
	return nil
}
