package workflow

import (
	"errors"
	"fmt"
)

// DefinitionBuilder assembles a machine definition fluently
type DefinitionBuilder interface {
	// State declares a state of the machine
	State(slug string, kind StateKind, label ...string) DefinitionBuilder

	// Configure returns a configuration for the outgoing transitions of a declared state
	Configure(stateSlug string) StateConfiguration

	// Build validates and returns the definition
	Build() (*Definition, error)
}

// StateConfiguration configures transitions leaving a specific state
type StateConfiguration interface {
	// Permit allows the transition to the target state without a guard
	Permit(transitionSlug, toState string) StateConfiguration

	// PermitIf allows the transition to the target state when the guard configuration passes
	PermitIf(transitionSlug, toState, guardConfig string) StateConfiguration

	// Labeled sets the display label of the most recently permitted transition
	Labeled(label string) StateConfiguration

	// WithMetadata attaches metadata to the most recently permitted transition
	WithMetadata(metadata map[string]interface{}) StateConfiguration
}

type pendingTransition struct {
	slug        string
	from        string
	to          string
	label       string
	guardConfig string
	metadata    map[string]interface{}
}

// stateConfig implements StateConfiguration
type stateConfig struct {
	builder   *definitionBuilder
	fromState string
}

// definitionBuilder implements DefinitionBuilder
type definitionBuilder struct {
	machine     Machine
	states      []State
	byslug      map[string]int
	transitions []*pendingTransition
	configs     map[string]*stateConfig
	errs        []error
}

// NewBuilder creates a new definition builder for the given machine
func NewBuilder(machine Machine) DefinitionBuilder {
	return &definitionBuilder{
		machine: machine,
		byslug:  make(map[string]int),
		configs: make(map[string]*stateConfig),
	}
}

// State declares a state. States receive provisional IDs in declaration
// order; stores remap them on save.
func (b *definitionBuilder) State(slug string, kind StateKind, label ...string) DefinitionBuilder {
	if _, exists := b.byslug[slug]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: state %s", ErrDuplicateSlug, slug))
		return b
	}

	s := State{
		ID:        int64(len(b.states) + 1),
		MachineID: b.machine.ID,
		Slug:      slug,
		Kind:      kind,
	}
	if len(label) > 0 {
		s.Label = label[0]
	}

	b.byslug[slug] = len(b.states)
	b.states = append(b.states, s)
	return b
}

// Configure returns a state configuration for the given state
func (b *definitionBuilder) Configure(stateSlug string) StateConfiguration {
	config, exists := b.configs[stateSlug]
	if !exists {
		config = &stateConfig{
			builder:   b,
			fromState: stateSlug,
		}
		b.configs[stateSlug] = config
	}
	return config
}

// Build resolves state references and validates the definition
func (b *definitionBuilder) Build() (*Definition, error) {
	errs := append([]error{}, b.errs...)

	def := &Definition{
		Machine: b.machine,
		States:  append([]State{}, b.states...),
	}

	for i, p := range b.transitions {
		from, okFrom := b.byslug[p.from]
		to, okTo := b.byslug[p.to]
		if !okFrom || !okTo {
			errs = append(errs, fmt.Errorf("%w: transition %s (%s -> %s)", ErrStateNotFound, p.slug, p.from, p.to))
			continue
		}

		label := p.label
		if label == "" {
			label = p.slug
		}

		def.Transitions = append(def.Transitions, Transition{
			MachineID:    b.machine.ID,
			Slug:         p.slug,
			FromStateID:  b.states[from].ID,
			ToStateID:    b.states[to].ID,
			Label:        label,
			GuardConfig:  p.guardConfig,
			Metadata:     p.metadata,
			DisplayOrder: i,
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return def, nil
}

// Permit allows the transition to the target state without a guard
func (c *stateConfig) Permit(transitionSlug, toState string) StateConfiguration {
	return c.PermitIf(transitionSlug, toState, "")
}

// PermitIf allows the transition to the target state when the guard passes
func (c *stateConfig) PermitIf(transitionSlug, toState, guardConfig string) StateConfiguration {
	c.builder.transitions = append(c.builder.transitions, &pendingTransition{
		slug:        transitionSlug,
		from:        c.fromState,
		to:          toState,
		guardConfig: guardConfig,
	})
	return c
}

// Labeled sets the label of the last transition permitted from this state
func (c *stateConfig) Labeled(label string) StateConfiguration {
	if p := c.last(); p != nil {
		p.label = label
	}
	return c
}

// WithMetadata attaches metadata to the last transition permitted from this state
func (c *stateConfig) WithMetadata(metadata map[string]interface{}) StateConfiguration {
	if p := c.last(); p != nil {
		p.metadata = metadata
	}
	return c
}

func (c *stateConfig) last() *pendingTransition {
	for i := len(c.builder.transitions) - 1; i >= 0; i-- {
		if c.builder.transitions[i].from == c.fromState {
			return c.builder.transitions[i]
		}
	}
	return nil
}
