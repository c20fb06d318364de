package port

import (
	"context"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
)

// DefinitionStore is the read-mostly catalog of machines, states and transitions.
// Lookups that find nothing return workflow.ErrMachineNotFound,
// workflow.ErrStateNotFound or workflow.ErrTransitionNotFound.
type DefinitionStore interface {
	GetMachine(ctx context.Context, id int64) (*workflow.Machine, error)
	GetMachineBySlug(ctx context.Context, slug string) (*workflow.Machine, error)
	GetState(ctx context.Context, id int64) (*workflow.State, error)
	StatesByMachine(ctx context.Context, machineID int64) ([]*workflow.State, error)
	GetTransition(ctx context.Context, id int64) (*workflow.Transition, error)
	GetTransitionBySlug(ctx context.Context, machineID int64, slug string) (*workflow.Transition, error)
	TransitionsByMachine(ctx context.Context, machineID int64) ([]*workflow.Transition, error)
}

// DefinitionWriter registers and removes definitions
type DefinitionWriter interface {
	// SaveDefinition persists a machine with its states and transitions atomically.
	// Provisional state IDs in the definition are remapped; the stored
	// definition with final IDs is returned.
	SaveDefinition(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error)

	// DeleteMachine removes a machine together with its states and transitions
	DeleteMachine(ctx context.Context, machineID int64) error

	CreateGroup(ctx context.Context, group *workflow.Group) error
	ListGroups(ctx context.Context) ([]*workflow.Group, error)
}

// DefinitionRepository combines catalog reads and writes
type DefinitionRepository interface {
	DefinitionStore
	DefinitionWriter
}

// MachineHistoryLocker is implemented by history stores that can hold off
// appends to one machine's log until the surrounding transaction ends
type MachineHistoryLocker interface {
	LockMachineHistory(ctx context.Context, machineID int64) error
}

// HistoryStore is the append-only transition log and the sole source of current state
type HistoryStore interface {
	// LatestEntry returns the most recent entry of the entity in the machine,
	// or nil (and no error) when the entity has no history there.
	LatestEntry(ctx context.Context, entityType, entityID string, machineID int64) (*workflow.LogEntry, error)

	// AppendEntry atomically appends an entry when the newest entry of the
	// entity in the machine still has sequence expectedSeq (0 = no entry).
	// It returns workflow.ErrAppendConflict when the precondition no longer holds.
	AppendEntry(ctx context.Context, entry *workflow.LogEntry, expectedSeq int64) (int64, error)

	// History returns entries newest-first
	History(ctx context.Context, query workflow.HistoryQuery) ([]*workflow.LogEntry, error)

	CountByMachine(ctx context.Context, machineID int64) (int64, error)
	DeleteByMachine(ctx context.Context, machineID int64) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// FindMachine resolves a machine reference by ID or slug
func FindMachine(ctx context.Context, store DefinitionStore, ref workflow.MachineRef) (*workflow.Machine, error) {
	if ref.ID != 0 {
		return store.GetMachine(ctx, ref.ID)
	}
	if ref.Slug == "" {
		return nil, workflow.ErrMachineNotFound
	}
	return store.GetMachineBySlug(ctx, ref.Slug)
}
