package repo

import (
	"context"
	"database/sql"

	"voxcollect/internal/domain"
)

func (r Repo) InsertUploadSession(ctx context.Context, s domain.UploadSession) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO upload_sessions(id, task_id, user_id, pending_files, created_at, expires_at)
VALUES (?,?,?,?,?,?)`,
		s.ID, s.TaskID, s.UserID, s.PendingFiles, s.CreatedAt, s.ExpiresAt)
	return err
}

func (r Repo) GetUploadSession(ctx context.Context, id string) (domain.UploadSession, error) {
	var s domain.UploadSession
	err := r.DB.QueryRowContext(ctx, `SELECT id, task_id, user_id, pending_files, created_at, expires_at
FROM upload_sessions WHERE id=?`, id).
		Scan(&s.ID, &s.TaskID, &s.UserID, &s.PendingFiles, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) DeleteUploadSession(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneUploadSessions removes sessions past their TTL with no pending files.
// Sessions live in the store rather than process memory so recovery survives a
// restart and works across instances.
func (r Repo) PruneUploadSessions(ctx context.Context, cutoff string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM upload_sessions WHERE expires_at < ? AND pending_files = 0`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
