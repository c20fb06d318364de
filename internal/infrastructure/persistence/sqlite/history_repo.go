package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryStore on the wf_history table
type HistoryRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

const historyColumns = `id, machine_id, entity_type, entity_id, from_state_id, to_state_id,
	transition_id, actor_id, comment, metadata, created_at`

func (r *HistoryRepository) LatestEntry(ctx context.Context, entityType, entityID string, machineID int64) (*workflow.LogEntry, error) {
	row := r.db.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM wf_history
		WHERE entity_type = ? AND entity_id = ? AND machine_id = ?
		ORDER BY id DESC LIMIT 1`,
		entityType, entityID, machineID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest entry",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return nil, err
	}
	return entry, nil
}

// AppendEntry re-reads the newest entry inside a write transaction and
// inserts only when it still has expectedSeq
func (r *HistoryRepository) AppendEntry(ctx context.Context, entry *workflow.LogEntry, expectedSeq int64) (int64, error) {
	metadata, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return 0, err
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	var id int64
	err = r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.getExecutor(ctx)

		var machineID int64
		err := exec.QueryRowContext(ctx, `SELECT id FROM wf_machines WHERE id = ?`, entry.MachineID).Scan(&machineID)
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.ErrMachineNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check machine: %w", err)
		}

		var latest int64
		err = exec.QueryRowContext(ctx,
			`SELECT id FROM wf_history
			WHERE entity_type = ? AND entity_id = ? AND machine_id = ?
			ORDER BY id DESC LIMIT 1`,
			entry.EntityType, entry.EntityID, entry.MachineID,
		).Scan(&latest)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read latest entry: %w", err)
		}
		if latest != expectedSeq {
			return workflow.ErrAppendConflict
		}

		result, err := exec.ExecContext(ctx,
			`INSERT INTO wf_history (
				machine_id, entity_type, entity_id, from_state_id, to_state_id,
				transition_id, actor_id, comment, metadata, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.MachineID,
			entry.EntityType,
			entry.EntityID,
			nullInt64(entry.FromStateID),
			entry.ToStateID,
			nullInt64(entry.TransitionID),
			entry.ActorID,
			entry.Comment,
			metadata,
			createdAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, workflow.ErrAppendConflict) {
			r.logger.Error("Failed to append entry", zap.String("entity_id", entry.EntityID), zap.Error(err))
		}
		return 0, err
	}
	return id, nil
}

// History returns matching entries newest-first
func (r *HistoryRepository) History(ctx context.Context, query workflow.HistoryQuery) ([]*workflow.LogEntry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + historyColumns + ` FROM wf_history WHERE entity_type = ? AND entity_id = ?`)
	args := []interface{}{query.EntityType, query.EntityID}
	if query.MachineID != 0 {
		sb.WriteString(` AND machine_id = ?`)
		args = append(args, query.MachineID)
	}
	sb.WriteString(` ORDER BY id DESC`)
	if query.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, query.Limit)
	}

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		r.logger.Error("Failed to query history", zap.String("entity_id", query.EntityID), zap.Error(err))
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*workflow.LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *HistoryRepository) CountByMachine(ctx context.Context, machineID int64) (int64, error) {
	var n int64
	err := r.db.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wf_history WHERE machine_id = ?`, machineID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

func (r *HistoryRepository) DeleteByMachine(ctx context.Context, machineID int64) error {
	if _, err := r.db.getExecutor(ctx).ExecContext(ctx, `DELETE FROM wf_history WHERE machine_id = ?`, machineID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

func scanEntry(row scanner) (*workflow.LogEntry, error) {
	var e workflow.LogEntry
	var from, transition sql.NullInt64
	var metadata sql.NullString
	err := row.Scan(
		&e.ID,
		&e.MachineID,
		&e.EntityType,
		&e.EntityID,
		&from,
		&e.ToStateID,
		&transition,
		&e.ActorID,
		&e.Comment,
		&metadata,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan history entry: %w", err)
	}
	e.FromStateID = int64Ptr(from)
	e.TransitionID = int64Ptr(transition)
	if e.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &e, nil
}

// Verify interface compliance
var _ port.HistoryStore = (*HistoryRepository)(nil)
