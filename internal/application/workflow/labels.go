package workflow

import (
	"context"

	"github.com/garyjia/workflow-engine/internal/application/port"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// labeler enriches log entries with slugs and labels. It loads each machine's
// graph once per call. Lookup failures leave labels empty; this is a display path.
type labeler struct {
	store       port.DefinitionStore
	logger      *zap.Logger
	machines    map[int64]*domainwf.Machine
	states      map[int64]*domainwf.State
	transitions map[int64]*domainwf.Transition
}

func newLabeler(store port.DefinitionStore, logger *zap.Logger) *labeler {
	return &labeler{
		store:       store,
		logger:      logger,
		machines:    make(map[int64]*domainwf.Machine),
		states:      make(map[int64]*domainwf.State),
		transitions: make(map[int64]*domainwf.Transition),
	}
}

func (l *labeler) load(ctx context.Context, machineID int64) {
	if _, ok := l.machines[machineID]; ok {
		return
	}

	machine, err := l.store.GetMachine(ctx, machineID)
	if err != nil {
		l.logger.Debug("History labels unavailable", zap.Int64("machine_id", machineID), zap.Error(err))
		l.machines[machineID] = &domainwf.Machine{ID: machineID}
		return
	}
	l.machines[machineID] = machine

	if states, err := l.store.StatesByMachine(ctx, machineID); err == nil {
		for _, s := range states {
			l.states[s.ID] = s
		}
	}
	if transitions, err := l.store.TransitionsByMachine(ctx, machineID); err == nil {
		for _, t := range transitions {
			l.transitions[t.ID] = t
		}
	}
}

func (l *labeler) item(ctx context.Context, entry *domainwf.LogEntry) HistoryItem {
	l.load(ctx, entry.MachineID)

	item := HistoryItem{
		Entry:       entry,
		MachineSlug: l.machines[entry.MachineID].Slug,
	}
	if entry.FromStateID != nil {
		if s, ok := l.states[*entry.FromStateID]; ok {
			item.FromState = s.Slug
			item.FromLabel = s.DisplayName()
		}
	}
	if s, ok := l.states[entry.ToStateID]; ok {
		item.ToState = s.Slug
		item.ToLabel = s.DisplayName()
	}
	if entry.TransitionID != nil {
		if t, ok := l.transitions[*entry.TransitionID]; ok {
			item.TransitionSlug = t.Slug
			item.TransitionLabel = t.DisplayName()
		}
	}
	return item
}
