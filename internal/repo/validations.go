package repo

import (
	"context"
	"database/sql"
	"fmt"

	"voxcollect/internal/domain"
)

func (r Repo) InsertValidationTx(ctx context.Context, tx *sql.Tx, v domain.Validation) error {
	approved := 0
	if v.Approved {
		approved = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO validations(id, contribution_id, validator_id, approved, comment, created_at)
VALUES (?,?,?,?,?,?)`,
		v.ID, v.ContributionID, v.ValidatorID, approved, nullable(v.Comment), v.CreatedAt)
	return err
}

func (r Repo) ListValidationsByContribution(ctx context.Context, contributionID string) ([]domain.Validation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, contribution_id, validator_id, approved, comment, created_at
FROM validations WHERE contribution_id=? ORDER BY created_at ASC, id ASC`, contributionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanValidations(rows)
}

func scanValidations(rows *sql.Rows) ([]domain.Validation, error) {
	var res []domain.Validation
	for rows.Next() {
		var v domain.Validation
		var approved int
		var comment sql.NullString
		if err := rows.Scan(&v.ID, &v.ContributionID, &v.ValidatorID, &approved, &comment, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Approved = approved != 0
		if comment.Valid {
			v.Comment = comment.String
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (r Repo) DeleteValidationsByContributionsTx(ctx context.Context, tx *sql.Tx, contributionIDs []string) (int, error) {
	if len(contributionIDs) == 0 {
		return 0, nil
	}
	args := make([]any, len(contributionIDs))
	for i, id := range contributionIDs {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM validations WHERE contribution_id IN (%s)`, placeholders(len(contributionIDs))), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
