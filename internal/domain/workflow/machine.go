package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// Group is an optional organizational bucket for machines.
// The engine never reads it at runtime.
type Group struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	DisplayOrder int    `json:"display_order"`
	Active       bool   `json:"active"`
}

// Machine is a named FSM definition registered by a client module
type Machine struct {
	ID         int64  `json:"id"`
	Slug       string `json:"slug"`
	Module     string `json:"module"`
	EntityType string `json:"entity_type"`
	Label      string `json:"label"`
	Active     bool   `json:"active"`
	GroupID    *int64 `json:"group_id,omitempty"`
}

// Transition is a directed, labeled edge between two states of the same machine.
// Transitions are keyed by ID (and by slug within a machine), so several
// transitions may connect the same ordered pair of states.
type Transition struct {
	ID           int64                  `json:"id"`
	MachineID    int64                  `json:"machine_id"`
	Slug         string                 `json:"slug"`
	FromStateID  int64                  `json:"from_state_id"`
	ToStateID    int64                  `json:"to_state_id"`
	Label        string                 `json:"label"`
	GuardConfig  string                 `json:"guard_config,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	DisplayOrder int                    `json:"display_order"`
}

// HasGuard returns true if the transition carries a guard configuration
func (t *Transition) HasGuard() bool {
	return strings.TrimSpace(t.GuardConfig) != ""
}

// DisplayName returns the label, falling back to the slug
func (t *Transition) DisplayName() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Slug
}

// MachineRef addresses a machine either by numeric ID or by slug
type MachineRef struct {
	ID   int64
	Slug string
}

// ParseMachineRef interprets s as a numeric ID when possible, otherwise as a slug
func ParseMachineRef(s string) MachineRef {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return MachineRef{ID: id}
	}
	return MachineRef{Slug: s}
}

// IsZero returns true if the reference addresses nothing
func (r MachineRef) IsZero() bool {
	return r.ID == 0 && r.Slug == ""
}

// String returns a printable form of the reference
func (r MachineRef) String() string {
	if r.ID != 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Slug
}

// Definition is a machine together with its graph
type Definition struct {
	Machine     Machine      `json:"machine"`
	States      []State      `json:"states"`
	Transitions []Transition `json:"transitions"`
}

// InitialState returns the machine's single initial state
func (d *Definition) InitialState() (*State, error) {
	return InitialStateOf(d.States)
}

// StateBySlug returns the state with the given slug
func (d *Definition) StateBySlug(slug string) (*State, bool) {
	for i := range d.States {
		if d.States[i].Slug == slug {
			return &d.States[i], true
		}
	}
	return nil, false
}

// StateByID returns the state with the given ID
func (d *Definition) StateByID(id int64) (*State, bool) {
	for i := range d.States {
		if d.States[i].ID == id {
			return &d.States[i], true
		}
	}
	return nil, false
}

// InitialStateOf finds the single initial state in a machine's state list
func InitialStateOf(states []State) (*State, error) {
	var initial *State
	for i := range states {
		if states[i].Kind != KindInitial {
			continue
		}
		if initial != nil {
			return nil, fmt.Errorf("%w: %s and %s", ErrMultipleInitialStates, initial.Slug, states[i].Slug)
		}
		initial = &states[i]
	}
	if initial == nil {
		return nil, ErrNoInitialState
	}
	return initial, nil
}

// Validate checks the definition-load-time invariants of a machine graph.
// Transitions reference states by ID, so callers that assemble definitions
// by hand must assign state IDs first (the Builder does this).
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Machine.Slug) == "" {
		return fmt.Errorf("%w: machine slug is required", ErrInvalidDefinition)
	}
	if strings.TrimSpace(d.Machine.EntityType) == "" {
		return fmt.Errorf("%w: machine %s has no entity type", ErrInvalidDefinition, d.Machine.Slug)
	}

	stateIDs := make(map[int64]bool, len(d.States))
	slugs := make(map[string]bool, len(d.States))
	finals := 0
	for _, s := range d.States {
		if s.Slug == "" {
			return fmt.Errorf("%w: state without slug in machine %s", ErrInvalidDefinition, d.Machine.Slug)
		}
		if !s.Kind.IsValid() {
			return fmt.Errorf("%w: state %s has kind %q", ErrInvalidStateKind, s.Slug, s.Kind)
		}
		if slugs[s.Slug] {
			return fmt.Errorf("%w: state %s", ErrDuplicateSlug, s.Slug)
		}
		slugs[s.Slug] = true
		stateIDs[s.ID] = true
		if s.Kind == KindFinal {
			finals++
		}
	}

	if _, err := InitialStateOf(d.States); err != nil {
		return fmt.Errorf("machine %s: %w", d.Machine.Slug, err)
	}
	if finals == 0 {
		return fmt.Errorf("machine %s: %w", d.Machine.Slug, ErrNoFinalState)
	}

	transitionSlugs := make(map[string]bool, len(d.Transitions))
	for _, t := range d.Transitions {
		if t.Slug == "" {
			return fmt.Errorf("%w: transition without slug in machine %s", ErrInvalidDefinition, d.Machine.Slug)
		}
		if transitionSlugs[t.Slug] {
			return fmt.Errorf("%w: transition %s", ErrDuplicateSlug, t.Slug)
		}
		transitionSlugs[t.Slug] = true
		if !stateIDs[t.FromStateID] || !stateIDs[t.ToStateID] {
			return fmt.Errorf("%w: transition %s", ErrForeignState, t.Slug)
		}
	}

	return nil
}
