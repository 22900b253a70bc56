package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"voxcollect/internal/domain"
)

const contributionCols = `id,task_id,user_id,status,storage_url,transcription_text,translation_text,rating,rejection_reason,submitted_at,updated_at`

func (r Repo) InsertContributionTx(ctx context.Context, tx *sql.Tx, c domain.Contribution) error {
	var rating any
	if c.Rating != nil {
		rating = *c.Rating
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO contributions(`+contributionCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.UserID, c.Status, nullablePtr(c.StorageURL), nullablePtr(c.TranscriptionText),
		nullablePtr(c.TranslationText), rating, nullablePtr(c.RejectionReason), c.SubmittedAt, c.UpdatedAt)
	return err
}

func scanContribution(scan func(dest ...any) error) (domain.Contribution, error) {
	var c domain.Contribution
	var storageURL, transcription, translation, reason sql.NullString
	var rating sql.NullInt64
	err := scan(&c.ID, &c.TaskID, &c.UserID, &c.Status, &storageURL, &transcription, &translation,
		&rating, &reason, &c.SubmittedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if storageURL.Valid {
		c.StorageURL = &storageURL.String
	}
	if transcription.Valid {
		c.TranscriptionText = &transcription.String
	}
	if translation.Valid {
		c.TranslationText = &translation.String
	}
	if rating.Valid {
		v := int(rating.Int64)
		c.Rating = &v
	}
	if reason.Valid {
		c.RejectionReason = &reason.String
	}
	return c, nil
}

func (r Repo) GetContribution(ctx context.Context, id string) (domain.Contribution, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contributionCols+` FROM contributions WHERE id=?`, id)
	return scanContribution(row.Scan)
}

func (r Repo) GetContributionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contribution, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+contributionCols+` FROM contributions WHERE id=?`, id)
	return scanContribution(row.Scan)
}

func (r Repo) GetContributionByTaskUser(ctx context.Context, taskID, userID string) (domain.Contribution, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contributionCols+` FROM contributions WHERE task_id=? AND user_id=?`, taskID, userID)
	return scanContribution(row.Scan)
}

func (r Repo) UpdateContributionTx(ctx context.Context, tx *sql.Tx, c domain.Contribution) error {
	var rating any
	if c.Rating != nil {
		rating = *c.Rating
	}
	res, err := tx.ExecContext(ctx, `UPDATE contributions SET status=?, storage_url=?, transcription_text=?, translation_text=?, rating=?, rejection_reason=?, updated_at=? WHERE id=?`,
		c.Status, nullablePtr(c.StorageURL), nullablePtr(c.TranscriptionText), nullablePtr(c.TranslationText),
		rating, nullablePtr(c.RejectionReason), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListContributionsByTask(ctx context.Context, taskID string) ([]domain.Contribution, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+contributionCols+` FROM contributions WHERE task_id=? ORDER BY submitted_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountContributionsByTask(ctx context.Context, taskID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contributions WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}

// HasAcceptedContribution reports whether any contribution for the task has
// already reached accepted or validated.
func (r Repo) HasAcceptedContribution(ctx context.Context, taskID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM contributions WHERE task_id=? AND status IN (?,?) LIMIT 1`,
		taskID, domain.ContributionAccepted, domain.ContributionValidated)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) HasAcceptedContributionTx(ctx context.Context, tx *sql.Tx, taskID, excludeID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM contributions WHERE task_id=? AND id<>? AND status IN (?,?) LIMIT 1`,
		taskID, excludeID, domain.ContributionAccepted, domain.ContributionValidated)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListContributionsByTasksTx(ctx context.Context, tx *sql.Tx, taskIDs []string) ([]domain.Contribution, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT `+contributionCols+` FROM contributions WHERE task_id IN (%s)`, placeholders(len(taskIDs))), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteContributionsByTasksTx(ctx context.Context, tx *sql.Tx, taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM contributions WHERE task_id IN (%s)`, placeholders(len(taskIDs))), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// IsUniqueViolation reports whether err is sqlite's unique-constraint failure.
// The (task_id, user_id) unique index turns the duplicate-contribution race
// into this error instead of a second row.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
