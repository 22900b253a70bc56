package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"voxcollect/internal/domain"
)

const taskCols = `id,project_id,type,status,prompt_text,assigned_to,priority,metadata_json,source_contribution_id,completed_contribution_id,current_contribution_id,created_by,created_at,updated_at`

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Type, t.Status, nullable(t.PromptText), nullablePtr(t.AssignedTo), t.Priority,
		nullablePtr(t.MetadataJSON), nullablePtr(t.SourceContributionID), nullablePtr(t.CompletedContributionID),
		nullablePtr(t.CurrentContributionID), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var prompt, assignedTo, metadata, sourceCID, completedCID, currentCID sql.NullString
	err := scan(&t.ID, &t.ProjectID, &t.Type, &t.Status, &prompt, &assignedTo, &t.Priority,
		&metadata, &sourceCID, &completedCID, &currentCID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if prompt.Valid {
		t.PromptText = prompt.String
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if metadata.Valid {
		t.MetadataJSON = &metadata.String
	}
	if sourceCID.Valid {
		t.SourceContributionID = &sourceCID.String
	}
	if completedCID.Valid {
		t.CompletedContributionID = &completedCID.String
	}
	if currentCID.Valid {
		t.CurrentContributionID = &currentCID.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, prompt_text=?, assigned_to=?, priority=?, metadata_json=?,
completed_contribution_id=?, current_contribution_id=?, updated_at=? WHERE id=?`,
		t.Status, nullable(t.PromptText), nullablePtr(t.AssignedTo), t.Priority, nullablePtr(t.MetadataJSON),
		nullablePtr(t.CompletedContributionID), nullablePtr(t.CurrentContributionID), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimTaskTx is the one true concurrency guard: a single conditional update
// that moves an open task to in_progress and assigns it, succeeding only if
// the row is still open. ErrNotFound means the race was lost (or the task is
// gone). Running in the submission transaction means the contribution insert
// and the claim commit or roll back together.
func (r Repo) ClaimTaskTx(ctx context.Context, tx *sql.Tx, taskID, userID, contributionID, now string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=?, assigned_to=?, current_contribution_id=?, updated_at=? WHERE id=? AND status=?`,
		domain.TaskInProgress, userID, contributionID, now, taskID, domain.TaskOpen)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCurrentContributionTx records the active contribution on an in_progress
// task held by userID without touching assignment.
func (r Repo) SetCurrentContributionTx(ctx context.Context, tx *sql.Tx, taskID, userID, contributionID, now string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET current_contribution_id=?, updated_at=? WHERE id=? AND status=? AND assigned_to=?`,
		contributionID, now, taskID, domain.TaskInProgress, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	ProjectID  string
	Status     string
	Type       string
	AssignedTo string
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ORDER BY priority DESC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTaskIDsByProjectTx(ctx context.Context, tx *sql.Tx, projectID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTaskBySourceContribution finds a derived task spawned from a contribution.
func (r Repo) GetTaskBySourceContributionTx(ctx context.Context, tx *sql.Tx, contributionID string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE source_contribution_id=?`, contributionID)
	return scanTask(row.Scan)
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r Repo) DeleteTasksTx(ctx context.Context, tx *sql.Tx, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM tasks WHERE id IN (%s)`, placeholders(len(ids))), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
