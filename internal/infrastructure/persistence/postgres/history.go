package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// HistoryStore implements port.HistoryStore on the wf_history table
type HistoryStore struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewHistoryStore creates a new history store
func NewHistoryStore(db *DB, logger *zap.Logger) *HistoryStore {
	return &HistoryStore{db: db, logger: logger, now: time.Now}
}

const historyColumns = `id, machine_id, entity_type, entity_id, from_state_id, to_state_id,
	transition_id, actor_id, comment, metadata, created_at`

func (h *HistoryStore) LatestEntry(ctx context.Context, entityType, entityID string, machineID int64) (*workflow.LogEntry, error) {
	entry, err := scanEntry(h.db.querier(ctx).QueryRow(ctx,
		`SELECT `+historyColumns+` FROM wf_history
		WHERE entity_type = $1 AND entity_id = $2 AND machine_id = $3
		ORDER BY id DESC LIMIT 1`,
		entityType, entityID, machineID,
	))
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest entry: %w", err)
	}
	return entry, nil
}

// AppendEntry serializes appends per entity with a transaction-scoped
// advisory lock, then inserts only when the newest entry still has expectedSeq
func (h *HistoryStore) AppendEntry(ctx context.Context, entry *workflow.LogEntry, expectedSeq int64) (int64, error) {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = h.now()
	}

	var id int64
	err := h.db.WithTransaction(ctx, func(ctx context.Context) error {
		q := h.db.querier(ctx)

		key := fmt.Sprintf("%s:%s:%d", entry.EntityType, entry.EntityID, entry.MachineID)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("failed to lock entity: %w", err)
		}

		// share-lock the machine row so a concurrent delete waits for this append
		var machineID int64
		err := q.QueryRow(ctx, `SELECT id FROM wf_machines WHERE id = $1 FOR SHARE`, entry.MachineID).Scan(&machineID)
		if isNotFound(err) {
			return workflow.ErrMachineNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock machine: %w", err)
		}

		var latest int64
		err = q.QueryRow(ctx,
			`SELECT id FROM wf_history
			WHERE entity_type = $1 AND entity_id = $2 AND machine_id = $3
			ORDER BY id DESC LIMIT 1`,
			entry.EntityType, entry.EntityID, entry.MachineID,
		).Scan(&latest)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to read latest entry: %w", err)
		}
		if latest != expectedSeq {
			return workflow.ErrAppendConflict
		}

		err = q.QueryRow(ctx,
			`INSERT INTO wf_history (
				machine_id, entity_type, entity_id, from_state_id, to_state_id,
				transition_id, actor_id, comment, metadata, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
			entry.MachineID, entry.EntityType, entry.EntityID, entry.FromStateID, entry.ToStateID,
			entry.TransitionID, entry.ActorID, entry.Comment, entry.Metadata, createdAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// History returns matching entries newest-first
func (h *HistoryStore) History(ctx context.Context, query workflow.HistoryQuery) ([]*workflow.LogEntry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + historyColumns + ` FROM wf_history WHERE entity_type = $1 AND entity_id = $2`)
	args := []interface{}{query.EntityType, query.EntityID}
	if query.MachineID != 0 {
		args = append(args, query.MachineID)
		fmt.Fprintf(&sb, ` AND machine_id = $%d`, len(args))
	}
	sb.WriteString(` ORDER BY id DESC`)
	if query.Limit > 0 {
		args = append(args, query.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := h.db.querier(ctx).Query(ctx, sb.String(), args...)
	if err != nil {
		h.logger.Error("Failed to query history", zap.String("entity_id", query.EntityID), zap.Error(err))
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*workflow.LogEntry, error) {
		return scanEntry(row)
	})
}

// LockMachineHistory blocks appends to the machine's log until the
// surrounding transaction ends. Outside a transaction it is a no-op.
func (h *HistoryStore) LockMachineHistory(ctx context.Context, machineID int64) error {
	var id int64
	err := h.db.querier(ctx).QueryRow(ctx, `SELECT id FROM wf_machines WHERE id = $1 FOR UPDATE`, machineID).Scan(&id)
	if isNotFound(err) {
		return workflow.ErrMachineNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock machine: %w", err)
	}
	return nil
}

func (h *HistoryStore) CountByMachine(ctx context.Context, machineID int64) (int64, error) {
	var n int64
	if err := h.db.querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM wf_history WHERE machine_id = $1`, machineID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

func (h *HistoryStore) DeleteByMachine(ctx context.Context, machineID int64) error {
	if _, err := h.db.querier(ctx).Exec(ctx, `DELETE FROM wf_history WHERE machine_id = $1`, machineID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

func scanEntry(row pgx.Row) (*workflow.LogEntry, error) {
	var e workflow.LogEntry
	err := row.Scan(
		&e.ID,
		&e.MachineID,
		&e.EntityType,
		&e.EntityID,
		&e.FromStateID,
		&e.ToStateID,
		&e.TransitionID,
		&e.ActorID,
		&e.Comment,
		&e.Metadata,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

var _ port.HistoryStore = (*HistoryStore)(nil)
