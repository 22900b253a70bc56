package repo

import (
	"context"
	"database/sql"
	"time"

	"voxcollect/internal/domain"
)

func (r Repo) UpsertMember(ctx context.Context, projectID, userID, role string) (domain.ProjectMember, error) {
	var m domain.ProjectMember
	err := r.RunTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = r.UpsertMemberTx(ctx, tx, projectID, userID, role)
		return err
	})
	return m, err
}

func (r Repo) UpsertMemberTx(ctx context.Context, tx *sql.Tx, projectID, userID, role string) (domain.ProjectMember, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO project_members(project_id, user_id, role, added_at)
VALUES (?,?,?,?)
ON CONFLICT(project_id, user_id) DO UPDATE SET role=excluded.role`,
		projectID, userID, role, now)
	if err != nil {
		return domain.ProjectMember{}, err
	}
	return r.GetMemberTx(ctx, tx, projectID, userID)
}

func (r Repo) GetMember(ctx context.Context, projectID, userID string) (domain.ProjectMember, error) {
	var m domain.ProjectMember
	err := r.DB.QueryRowContext(ctx, `SELECT project_id, user_id, role, added_at FROM project_members WHERE project_id=? AND user_id=?`,
		projectID, userID).Scan(&m.ProjectID, &m.UserID, &m.Role, &m.AddedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, projectID, userID string) (domain.ProjectMember, error) {
	var m domain.ProjectMember
	err := tx.QueryRowContext(ctx, `SELECT project_id, user_id, role, added_at FROM project_members WHERE project_id=? AND user_id=?`,
		projectID, userID).Scan(&m.ProjectID, &m.UserID, &m.Role, &m.AddedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, user_id, role, added_at FROM project_members WHERE project_id=? ORDER BY user_id ASC`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.AddedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) DeleteMember(ctx context.Context, projectID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMembersByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=?`, projectID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
