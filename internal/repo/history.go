package repo

import (
	"context"
	"database/sql"

	"voxcollect/internal/domain"
)

func (r Repo) AppendStatusHistoryTx(ctx context.Context, tx *sql.Tx, h domain.TaskStatusHistory) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_status_history(task_id, from_status, to_status, changed_by, note, changed_at)
VALUES (?,?,?,?,?,?)`,
		h.TaskID, h.FromStatus, h.ToStatus, h.ChangedBy, nullable(h.Note), h.ChangedAt)
	return err
}

// LatestStatusHistory returns the most recent history row for a task; this is
// the ground truth the integrity checker repairs against.
func (r Repo) LatestStatusHistory(ctx context.Context, taskID string) (domain.TaskStatusHistory, error) {
	var h domain.TaskStatusHistory
	var note sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id, task_id, from_status, to_status, changed_by, note, changed_at
FROM task_status_history WHERE task_id=? ORDER BY id DESC LIMIT 1`, taskID).
		Scan(&h.ID, &h.TaskID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &note, &h.ChangedAt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if note.Valid {
		h.Note = note.String
	}
	return h, err
}

func (r Repo) ListStatusHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskStatusHistory, error) {
	query := `SELECT id, task_id, from_status, to_status, changed_by, note, changed_at
FROM task_status_history WHERE task_id=? ORDER BY id DESC`
	args := []any{taskID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskStatusHistory
	for rows.Next() {
		var h domain.TaskStatusHistory
		var note sql.NullString
		if err := rows.Scan(&h.ID, &h.TaskID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &note, &h.ChangedAt); err != nil {
			return nil, err
		}
		if note.Valid {
			h.Note = note.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
