package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *DB, logger *zap.Logger) *DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const (
	machineColumns    = `id, slug, module, entity_type, label, active, group_id`
	stateColumns      = `id, machine_id, slug, label, kind`
	transitionColumns = `id, machine_id, slug, from_state_id, to_state_id, label, guard_config, metadata, display_order`
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// SaveDefinition inserts the machine, its states and transitions in one transaction
func (r *DefinitionRepository) SaveDefinition(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error) {
	var saved *workflow.Definition
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.getExecutor(ctx)

		if def.Machine.GroupID != nil {
			var found int
			err := exec.QueryRowContext(ctx, `SELECT 1 FROM wf_groups WHERE id = ?`, *def.Machine.GroupID).Scan(&found)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %d", workflow.ErrGroupNotFound, *def.Machine.GroupID)
			}
			if err != nil {
				return fmt.Errorf("failed to check group: %w", err)
			}
		}

		machine := def.Machine
		result, err := exec.ExecContext(ctx,
			`INSERT INTO wf_machines (slug, module, entity_type, label, active, group_id) VALUES (?, ?, ?, ?, ?, ?)`,
			machine.Slug, machine.Module, machine.EntityType, machine.Label, machine.Active, nullInt64(machine.GroupID),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", workflow.ErrDuplicateMachine, machine.Slug)
		}
		if err != nil {
			return fmt.Errorf("failed to insert machine: %w", err)
		}
		if machine.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		saved = &workflow.Definition{Machine: machine}

		stateIDs := make(map[int64]int64, len(def.States))
		for _, s := range def.States {
			result, err := exec.ExecContext(ctx,
				`INSERT INTO wf_states (machine_id, slug, label, kind) VALUES (?, ?, ?, ?)`,
				machine.ID, s.Slug, s.Label, string(s.Kind),
			)
			if err != nil {
				return fmt.Errorf("failed to insert state %s: %w", s.Slug, err)
			}
			provisional := s.ID
			if s.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			s.MachineID = machine.ID
			stateIDs[provisional] = s.ID
			saved.States = append(saved.States, s)
		}

		for _, t := range def.Transitions {
			from, okFrom := stateIDs[t.FromStateID]
			to, okTo := stateIDs[t.ToStateID]
			if !okFrom || !okTo {
				return fmt.Errorf("%w: transition %s", workflow.ErrForeignState, t.Slug)
			}
			metadata, err := encodeMetadata(t.Metadata)
			if err != nil {
				return err
			}
			result, err := exec.ExecContext(ctx,
				`INSERT INTO wf_transitions (machine_id, slug, from_state_id, to_state_id, label, guard_config, metadata, display_order)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				machine.ID, t.Slug, from, to, t.Label, t.GuardConfig, metadata, t.DisplayOrder,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transition %s: %w", t.Slug, err)
			}
			if t.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			t.MachineID = machine.ID
			t.FromStateID = from
			t.ToStateID = to
			saved.Transitions = append(saved.Transitions, t)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save definition", zap.String("machine", def.Machine.Slug), zap.Error(err))
		return nil, err
	}
	return saved, nil
}

// DeleteMachine removes the machine; states and transitions cascade
func (r *DefinitionRepository) DeleteMachine(ctx context.Context, machineID int64) error {
	result, err := r.db.getExecutor(ctx).ExecContext(ctx, `DELETE FROM wf_machines WHERE id = ?`, machineID)
	if err != nil {
		r.logger.Error("Failed to delete machine", zap.Int64("machine_id", machineID), zap.Error(err))
		return fmt.Errorf("failed to delete machine: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", workflow.ErrMachineNotFound, machineID)
	}
	return nil
}

// CreateGroup inserts a group and assigns its ID
func (r *DefinitionRepository) CreateGroup(ctx context.Context, group *workflow.Group) error {
	result, err := r.db.getExecutor(ctx).ExecContext(ctx,
		`INSERT INTO wf_groups (name, slug, display_order, active) VALUES (?, ?, ?, ?)`,
		group.Name, group.Slug, group.DisplayOrder, group.Active,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", workflow.ErrDuplicateGroup, group.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	group.ID = id
	return nil
}

// ListGroups returns groups by display order
func (r *DefinitionRepository) ListGroups(ctx context.Context) ([]*workflow.Group, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx,
		`SELECT id, name, slug, display_order, active FROM wf_groups ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*workflow.Group
	for rows.Next() {
		var g workflow.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.DisplayOrder, &g.Active); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

func (r *DefinitionRepository) GetMachine(ctx context.Context, id int64) (*workflow.Machine, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx, `SELECT `+machineColumns+` FROM wf_machines WHERE id = ?`, id)
	m, err := scanMachine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", workflow.ErrMachineNotFound, id)
	}
	return m, err
}

func (r *DefinitionRepository) GetMachineBySlug(ctx context.Context, slug string) (*workflow.Machine, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx, `SELECT `+machineColumns+` FROM wf_machines WHERE slug = ?`, slug)
	m, err := scanMachine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrMachineNotFound, slug)
	}
	return m, err
}

func (r *DefinitionRepository) GetState(ctx context.Context, id int64) (*workflow.State, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx, `SELECT `+stateColumns+` FROM wf_states WHERE id = ?`, id)
	s, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", workflow.ErrStateNotFound, id)
	}
	return s, err
}

// StatesByMachine returns the machine's states ordered by ID
func (r *DefinitionRepository) StatesByMachine(ctx context.Context, machineID int64) ([]*workflow.State, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx,
		`SELECT `+stateColumns+` FROM wf_states WHERE machine_id = ? ORDER BY id`, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var states []*workflow.State
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

func (r *DefinitionRepository) GetTransition(ctx context.Context, id int64) (*workflow.Transition, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx, `SELECT `+transitionColumns+` FROM wf_transitions WHERE id = ?`, id)
	t, err := scanTransition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", workflow.ErrTransitionNotFound, id)
	}
	return t, err
}

func (r *DefinitionRepository) GetTransitionBySlug(ctx context.Context, machineID int64, slug string) (*workflow.Transition, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT `+transitionColumns+` FROM wf_transitions WHERE machine_id = ? AND slug = ?`, machineID, slug)
	t, err := scanTransition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrTransitionNotFound, slug)
	}
	return t, err
}

// TransitionsByMachine returns the machine's transitions by display order
func (r *DefinitionRepository) TransitionsByMachine(ctx context.Context, machineID int64) ([]*workflow.Transition, error) {
	rows, err := r.db.getExecutor(ctx).QueryContext(ctx,
		`SELECT `+transitionColumns+` FROM wf_transitions WHERE machine_id = ? ORDER BY display_order, id`, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []*workflow.Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

func scanMachine(row scanner) (*workflow.Machine, error) {
	var m workflow.Machine
	var groupID sql.NullInt64
	if err := row.Scan(&m.ID, &m.Slug, &m.Module, &m.EntityType, &m.Label, &m.Active, &groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan machine: %w", err)
	}
	m.GroupID = int64Ptr(groupID)
	return &m, nil
}

func scanState(row scanner) (*workflow.State, error) {
	var s workflow.State
	var kind string
	if err := row.Scan(&s.ID, &s.MachineID, &s.Slug, &s.Label, &kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan state: %w", err)
	}
	s.Kind = workflow.StateKind(kind)
	return &s, nil
}

func scanTransition(row scanner) (*workflow.Transition, error) {
	var t workflow.Transition
	var metadata sql.NullString
	err := row.Scan(&t.ID, &t.MachineID, &t.Slug, &t.FromStateID, &t.ToStateID,
		&t.Label, &t.GuardConfig, &metadata, &t.DisplayOrder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transition: %w", err)
	}
	if t.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
