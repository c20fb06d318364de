package postgres

import (
	"context"
	"fmt"

	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *DB, logger *zap.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

const (
	machineColumns    = `id, slug, module, entity_type, label, active, group_id`
	stateColumns      = `id, machine_id, slug, label, kind`
	transitionColumns = `id, machine_id, slug, from_state_id, to_state_id, label, guard_config, metadata, display_order`
)

// SaveDefinition inserts the machine, its states and transitions in one transaction
func (r *DefinitionRepository) SaveDefinition(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error) {
	var saved *workflow.Definition
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		q := r.db.querier(ctx)

		if def.Machine.GroupID != nil {
			var found int
			err := q.QueryRow(ctx, `SELECT 1 FROM wf_groups WHERE id = $1`, *def.Machine.GroupID).Scan(&found)
			if isNotFound(err) {
				return fmt.Errorf("%w: %d", workflow.ErrGroupNotFound, *def.Machine.GroupID)
			}
			if err != nil {
				return fmt.Errorf("failed to check group: %w", err)
			}
		}

		machine := def.Machine
		err := q.QueryRow(ctx,
			`INSERT INTO wf_machines (slug, module, entity_type, label, active, group_id)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			machine.Slug, machine.Module, machine.EntityType, machine.Label, machine.Active, machine.GroupID,
		).Scan(&machine.ID)
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", workflow.ErrDuplicateMachine, machine.Slug)
		}
		if err != nil {
			return fmt.Errorf("failed to insert machine: %w", err)
		}
		saved = &workflow.Definition{Machine: machine}

		stateIDs := make(map[int64]int64, len(def.States))
		for _, s := range def.States {
			provisional := s.ID
			err := q.QueryRow(ctx,
				`INSERT INTO wf_states (machine_id, slug, label, kind) VALUES ($1, $2, $3, $4) RETURNING id`,
				machine.ID, s.Slug, s.Label, string(s.Kind),
			).Scan(&s.ID)
			if err != nil {
				return fmt.Errorf("failed to insert state %s: %w", s.Slug, err)
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
			err := q.QueryRow(ctx,
				`INSERT INTO wf_transitions (machine_id, slug, from_state_id, to_state_id, label, guard_config, metadata, display_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
				machine.ID, t.Slug, from, to, t.Label, t.GuardConfig, t.Metadata, t.DisplayOrder,
			).Scan(&t.ID)
			if err != nil {
				return fmt.Errorf("failed to insert transition %s: %w", t.Slug, err)
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
	tag, err := r.db.querier(ctx).Exec(ctx, `DELETE FROM wf_machines WHERE id = $1`, machineID)
	if err != nil {
		return fmt.Errorf("failed to delete machine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", workflow.ErrMachineNotFound, machineID)
	}
	return nil
}

func (r *DefinitionRepository) CreateGroup(ctx context.Context, group *workflow.Group) error {
	err := r.db.querier(ctx).QueryRow(ctx,
		`INSERT INTO wf_groups (name, slug, display_order, active) VALUES ($1, $2, $3, $4) RETURNING id`,
		group.Name, group.Slug, group.DisplayOrder, group.Active,
	).Scan(&group.ID)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %s", workflow.ErrDuplicateGroup, group.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (r *DefinitionRepository) ListGroups(ctx context.Context) ([]*workflow.Group, error) {
	rows, err := r.db.querier(ctx).Query(ctx,
		`SELECT id, name, slug, display_order, active FROM wf_groups ORDER BY display_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*workflow.Group, error) {
		var g workflow.Group
		err := row.Scan(&g.ID, &g.Name, &g.Slug, &g.DisplayOrder, &g.Active)
		return &g, err
	})
}

func (r *DefinitionRepository) GetMachine(ctx context.Context, id int64) (*workflow.Machine, error) {
	m, err := scanMachine(r.db.querier(ctx).QueryRow(ctx, `SELECT `+machineColumns+` FROM wf_machines WHERE id = $1`, id))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %d", workflow.ErrMachineNotFound, id)
	}
	return m, err
}

func (r *DefinitionRepository) GetMachineBySlug(ctx context.Context, slug string) (*workflow.Machine, error) {
	m, err := scanMachine(r.db.querier(ctx).QueryRow(ctx, `SELECT `+machineColumns+` FROM wf_machines WHERE slug = $1`, slug))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrMachineNotFound, slug)
	}
	return m, err
}

func (r *DefinitionRepository) GetState(ctx context.Context, id int64) (*workflow.State, error) {
	s, err := scanState(r.db.querier(ctx).QueryRow(ctx, `SELECT `+stateColumns+` FROM wf_states WHERE id = $1`, id))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %d", workflow.ErrStateNotFound, id)
	}
	return s, err
}

func (r *DefinitionRepository) StatesByMachine(ctx context.Context, machineID int64) ([]*workflow.State, error) {
	rows, err := r.db.querier(ctx).Query(ctx,
		`SELECT `+stateColumns+` FROM wf_states WHERE machine_id = $1 ORDER BY id`, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*workflow.State, error) {
		return scanState(row)
	})
}

func (r *DefinitionRepository) GetTransition(ctx context.Context, id int64) (*workflow.Transition, error) {
	t, err := scanTransition(r.db.querier(ctx).QueryRow(ctx, `SELECT `+transitionColumns+` FROM wf_transitions WHERE id = $1`, id))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %d", workflow.ErrTransitionNotFound, id)
	}
	return t, err
}

func (r *DefinitionRepository) GetTransitionBySlug(ctx context.Context, machineID int64, slug string) (*workflow.Transition, error) {
	t, err := scanTransition(r.db.querier(ctx).QueryRow(ctx,
		`SELECT `+transitionColumns+` FROM wf_transitions WHERE machine_id = $1 AND slug = $2`, machineID, slug))
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrTransitionNotFound, slug)
	}
	return t, err
}

func (r *DefinitionRepository) TransitionsByMachine(ctx context.Context, machineID int64) ([]*workflow.Transition, error) {
	rows, err := r.db.querier(ctx).Query(ctx,
		`SELECT `+transitionColumns+` FROM wf_transitions WHERE machine_id = $1 ORDER BY display_order, id`, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*workflow.Transition, error) {
		return scanTransition(row)
	})
}

func scanMachine(row pgx.Row) (*workflow.Machine, error) {
	var m workflow.Machine
	if err := row.Scan(&m.ID, &m.Slug, &m.Module, &m.EntityType, &m.Label, &m.Active, &m.GroupID); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanState(row pgx.Row) (*workflow.State, error) {
	var s workflow.State
	var kind string
	if err := row.Scan(&s.ID, &s.MachineID, &s.Slug, &s.Label, &kind); err != nil {
		return nil, err
	}
	s.Kind = workflow.StateKind(kind)
	return &s, nil
}

func scanTransition(row pgx.Row) (*workflow.Transition, error) {
	var t workflow.Transition
	err := row.Scan(&t.ID, &t.MachineID, &t.Slug, &t.FromStateID, &t.ToStateID,
		&t.Label, &t.GuardConfig, &t.Metadata, &t.DisplayOrder)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
