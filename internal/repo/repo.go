package repo

import (
	"context"
	"database/sql"
	"errors"

	"voxcollect/internal/config"
	"voxcollect/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// RunTx emulates the begin/commit/rollback coordinator: begin, run fn, commit;
// roll back and propagate fn's error on any failure. Atomicity holds only for
// row mutations inside fn; blob-store side effects need their own compensation.
func (r Repo) RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var desc, srcLang, tgtLang sql.NullString
	err := row.Scan(&p.ID, &p.Name, &desc, &p.Status, &srcLang, &tgtLang, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if srcLang.Valid {
		p.SourceLanguage = srcLang.String
	}
	if tgtLang.Valid {
		p.TargetLanguage = tgtLang.String
	}
	return p, err
}

const projectCols = `id,name,description,status,source_language,target_language,created_by,created_at`

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.Status, nullable(p.SourceLanguage), nullable(p.TargetLanguage), p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectCols+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var desc, srcLang, tgtLang sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.Status, &srcLang, &tgtLang, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		if srcLang.Valid {
			p.SourceLanguage = srcLang.String
		}
		if tgtLang.Valid {
			p.TargetLanguage = tgtLang.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SetProjectStatus is a plain status write, used by the cascade deleter to take
// and release the archived lock.
func (r Repo) SetProjectStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProjectStatusIf updates status only when the row still holds expect.
// ErrNotFound means the row is gone or another writer got there first.
func (r Repo) SetProjectStatusIf(ctx context.Context, id, expect, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET status=? WHERE id=? AND status=?`, status, id, expect)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_configs WHERE project_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return r.RunTx(ctx, func(tx *sql.Tx) error {
		return r.UpsertProjectConfigTx(ctx, tx, projectID, cfg)
	})
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	data, err := cfg.ToYAML()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO project_configs(project_id, yaml, updated_at) VALUES (?,?,datetime('now'))
ON CONFLICT(project_id) DO UPDATE SET yaml=excluded.yaml, updated_at=excluded.updated_at`,
		projectID, string(data))
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT yaml FROM project_configs WHERE project_id=?`, projectID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(raw))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
