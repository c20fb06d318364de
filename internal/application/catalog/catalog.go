// Package catalog registers and removes machine definitions. Definitions are
// validated and every guard configuration is pre-flighted before anything is
// stored, so broken guards fail at load time rather than at first use.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// DeletionPolicy decides what happens to history when a machine is deleted
type DeletionPolicy string

const (
	// PolicyRestrict refuses to delete machines that own log entries
	PolicyRestrict DeletionPolicy = "restrict"
	// PolicyCascade deletes the machine's log entries with it
	PolicyCascade DeletionPolicy = "cascade"
)

// IsValid returns true for a known policy
func (p DeletionPolicy) IsValid() bool {
	return p == PolicyRestrict || p == PolicyCascade
}

// ErrInvalidGuard wraps guard configuration problems found at registration
var ErrInvalidGuard = errors.New("invalid guard on transition")

// GuardValidator pre-flights guard configuration strings
type GuardValidator interface {
	Validate(config string) []error
}

// Service manages the machine catalog
type Service struct {
	definitions port.DefinitionRepository
	history     port.HistoryStore
	guards      GuardValidator
	tx          port.TransactionManager
	policy      DeletionPolicy
	logger      *zap.Logger
}

// Option configures the service
type Option func(*Service)

// WithDeletionPolicy sets the machine deletion policy
func WithDeletionPolicy(policy DeletionPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithTransactions runs the history check and the delete inside one transaction
func WithTransactions(tx port.TransactionManager) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a catalog service
func NewService(definitions port.DefinitionRepository, history port.HistoryStore, guards GuardValidator, opts ...Option) *Service {
	s := &Service{
		definitions: definitions,
		history:     history,
		guards:      guards,
		policy:      PolicyRestrict,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and stores a definition. The stored definition carries final IDs.
func (s *Service) Register(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", workflow.ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkGuards(def); err != nil {
		return nil, err
	}

	saved, err := s.definitions.SaveDefinition(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("failed to save machine %s: %w", def.Machine.Slug, err)
	}

	s.logger.Info("Machine registered",
		zap.String("machine", saved.Machine.Slug),
		zap.String("module", saved.Machine.Module),
		zap.Int64("machine_id", saved.Machine.ID),
		zap.Int("states", len(saved.States)),
		zap.Int("transitions", len(saved.Transitions)),
	)
	return saved, nil
}

func (s *Service) checkGuards(def *workflow.Definition) error {
	if s.guards == nil {
		return nil
	}

	var errs []error
	for _, t := range def.Transitions {
		if !t.HasGuard() {
			continue
		}
		for _, err := range s.guards.Validate(t.GuardConfig) {
			errs = append(errs, fmt.Errorf("%w %s (%q): %w", ErrInvalidGuard, t.Slug, t.GuardConfig, err))
		}
	}
	return errors.Join(errs...)
}

// Machine returns a machine with its states and transitions
func (s *Service) Machine(ctx context.Context, ref workflow.MachineRef) (*workflow.Definition, error) {
	machine, err := port.FindMachine(ctx, s.definitions, ref)
	if err != nil {
		return nil, err
	}

	states, err := s.definitions.StatesByMachine(ctx, machine.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load states of %s: %w", machine.Slug, err)
	}
	transitions, err := s.definitions.TransitionsByMachine(ctx, machine.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transitions of %s: %w", machine.Slug, err)
	}

	def := &workflow.Definition{Machine: *machine}
	for _, st := range states {
		def.States = append(def.States, *st)
	}
	for _, t := range transitions {
		def.Transitions = append(def.Transitions, *t)
	}
	return def, nil
}

// DeleteMachine removes a machine according to the deletion policy
func (s *Service) DeleteMachine(ctx context.Context, ref workflow.MachineRef) error {
	machine, err := port.FindMachine(ctx, s.definitions, ref)
	if err != nil {
		return err
	}

	var count int64
	remove := func(ctx context.Context) error {
		if locker, ok := s.history.(port.MachineHistoryLocker); ok && s.tx != nil {
			if err := locker.LockMachineHistory(ctx, machine.ID); err != nil {
				return fmt.Errorf("failed to lock history of %s: %w", machine.Slug, err)
			}
		}

		n, err := s.history.CountByMachine(ctx, machine.ID)
		if err != nil {
			return fmt.Errorf("failed to count history of %s: %w", machine.Slug, err)
		}
		count = n
		if count > 0 && s.policy != PolicyCascade {
			return fmt.Errorf("%w: %s has %d log entries", workflow.ErrMachineHasHistory, machine.Slug, count)
		}

		if count > 0 {
			if err := s.history.DeleteByMachine(ctx, machine.ID); err != nil {
				return fmt.Errorf("failed to delete history of %s: %w", machine.Slug, err)
			}
		}
		if err := s.definitions.DeleteMachine(ctx, machine.ID); err != nil {
			return fmt.Errorf("failed to delete machine %s: %w", machine.Slug, err)
		}
		return nil
	}

	if s.tx != nil {
		err = s.tx.WithTransaction(ctx, remove)
	} else {
		err = remove(ctx)
	}
	if err != nil {
		return err
	}

	s.logger.Info("Machine deleted",
		zap.String("machine", machine.Slug),
		zap.String("policy", string(s.policy)),
		zap.Int64("log_entries_removed", count),
	)
	return nil
}

// CreateGroup stores an organizational group
func (s *Service) CreateGroup(ctx context.Context, group *workflow.Group) error {
	if group.Slug == "" || group.Name == "" {
		return fmt.Errorf("%w: group name and slug are required", workflow.ErrInvalidDefinition)
	}
	return s.definitions.CreateGroup(ctx, group)
}

// ListGroups returns all groups
func (s *Service) ListGroups(ctx context.Context) ([]*workflow.Group, error) {
	return s.definitions.ListGroups(ctx)
}
