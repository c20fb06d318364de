// Package memory provides in-process implementations of the definition and
// history ports. They back the memory storage driver and package tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/workflow-engine/internal/domain/workflow"
)

// DefinitionRepository stores machine definitions in memory
type DefinitionRepository struct {
	mu          sync.RWMutex
	nextID      int64
	machines    map[int64]*workflow.Machine
	states      map[int64]*workflow.State
	transitions map[int64]*workflow.Transition
	groups      map[int64]*workflow.Group
}

// NewDefinitionRepository creates an empty repository
func NewDefinitionRepository() *DefinitionRepository {
	return &DefinitionRepository{
		machines:    make(map[int64]*workflow.Machine),
		states:      make(map[int64]*workflow.State),
		transitions: make(map[int64]*workflow.Transition),
		groups:      make(map[int64]*workflow.Group),
	}
}

func (r *DefinitionRepository) id() int64 {
	r.nextID++
	return r.nextID
}

// SaveDefinition stores the machine with fresh IDs for every record
func (r *DefinitionRepository) SaveDefinition(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.machines {
		if m.Slug == def.Machine.Slug {
			return nil, fmt.Errorf("%w: %s", workflow.ErrDuplicateMachine, def.Machine.Slug)
		}
	}
	if def.Machine.GroupID != nil {
		if _, ok := r.groups[*def.Machine.GroupID]; !ok {
			return nil, fmt.Errorf("%w: %d", workflow.ErrGroupNotFound, *def.Machine.GroupID)
		}
	}

	machine := def.Machine
	machine.ID = r.id()
	saved := &workflow.Definition{Machine: machine}

	stateIDs := make(map[int64]int64, len(def.States))
	for _, s := range def.States {
		provisional := s.ID
		s.ID = r.id()
		s.MachineID = machine.ID
		stateIDs[provisional] = s.ID
		saved.States = append(saved.States, s)
	}

	for _, t := range def.Transitions {
		from, okFrom := stateIDs[t.FromStateID]
		to, okTo := stateIDs[t.ToStateID]
		if !okFrom || !okTo {
			return nil, fmt.Errorf("%w: transition %s", workflow.ErrForeignState, t.Slug)
		}
		t.ID = r.id()
		t.MachineID = machine.ID
		t.FromStateID = from
		t.ToStateID = to
		saved.Transitions = append(saved.Transitions, t)
	}

	m := machine
	r.machines[m.ID] = &m
	for i := range saved.States {
		s := saved.States[i]
		r.states[s.ID] = &s
	}
	for i := range saved.Transitions {
		t := saved.Transitions[i]
		r.transitions[t.ID] = &t
	}

	return saved, nil
}

// DeleteMachine removes a machine with its states and transitions
func (r *DefinitionRepository) DeleteMachine(ctx context.Context, machineID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.machines[machineID]; !ok {
		return fmt.Errorf("%w: %d", workflow.ErrMachineNotFound, machineID)
	}
	delete(r.machines, machineID)
	for id, s := range r.states {
		if s.MachineID == machineID {
			delete(r.states, id)
		}
	}
	for id, t := range r.transitions {
		if t.MachineID == machineID {
			delete(r.transitions, id)
		}
	}
	return nil
}

// CreateGroup stores a group and assigns its ID
func (r *DefinitionRepository) CreateGroup(ctx context.Context, group *workflow.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.groups {
		if g.Slug == group.Slug {
			return fmt.Errorf("%w: %s", workflow.ErrDuplicateGroup, group.Slug)
		}
	}
	group.ID = r.id()
	g := *group
	r.groups[g.ID] = &g
	return nil
}

// ListGroups returns groups by display order
func (r *DefinitionRepository) ListGroups(ctx context.Context) ([]*workflow.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make([]*workflow.Group, 0, len(r.groups))
	for _, g := range r.groups {
		c := *g
		groups = append(groups, &c)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].DisplayOrder != groups[j].DisplayOrder {
			return groups[i].DisplayOrder < groups[j].DisplayOrder
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

func (r *DefinitionRepository) GetMachine(ctx context.Context, id int64) (*workflow.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.machines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", workflow.ErrMachineNotFound, id)
	}
	c := *m
	return &c, nil
}

func (r *DefinitionRepository) GetMachineBySlug(ctx context.Context, slug string) (*workflow.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.machines {
		if m.Slug == slug {
			c := *m
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", workflow.ErrMachineNotFound, slug)
}

func (r *DefinitionRepository) GetState(ctx context.Context, id int64) (*workflow.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", workflow.ErrStateNotFound, id)
	}
	c := *s
	return &c, nil
}

// StatesByMachine returns the machine's states ordered by ID
func (r *DefinitionRepository) StatesByMachine(ctx context.Context, machineID int64) ([]*workflow.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var states []*workflow.State
	for _, s := range r.states {
		if s.MachineID == machineID {
			c := *s
			states = append(states, &c)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states, nil
}

func (r *DefinitionRepository) GetTransition(ctx context.Context, id int64) (*workflow.Transition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transitions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", workflow.ErrTransitionNotFound, id)
	}
	c := *t
	return &c, nil
}

func (r *DefinitionRepository) GetTransitionBySlug(ctx context.Context, machineID int64, slug string) (*workflow.Transition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.transitions {
		if t.MachineID == machineID && t.Slug == slug {
			c := *t
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", workflow.ErrTransitionNotFound, slug)
}

// TransitionsByMachine returns the machine's transitions by display order
func (r *DefinitionRepository) TransitionsByMachine(ctx context.Context, machineID int64) ([]*workflow.Transition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var transitions []*workflow.Transition
	for _, t := range r.transitions {
		if t.MachineID == machineID {
			c := *t
			transitions = append(transitions, &c)
		}
	}
	sort.Slice(transitions, func(i, j int) bool {
		if transitions[i].DisplayOrder != transitions[j].DisplayOrder {
			return transitions[i].DisplayOrder < transitions[j].DisplayOrder
		}
		return transitions[i].ID < transitions[j].ID
	})
	return transitions, nil
}
