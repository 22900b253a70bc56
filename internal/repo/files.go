package repo

import (
	"context"
	"database/sql"
	"fmt"

	"voxcollect/internal/domain"
)

const fileCols = `id,bucket,path,public_url,content_type,size_bytes,created_at`

func (r Repo) InsertFileMetadataTx(ctx context.Context, tx *sql.Tx, f domain.FileMetadata) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO file_metadata(`+fileCols+`) VALUES (?,?,?,?,?,?,?)`,
		f.ID, f.Bucket, f.Path, f.PublicURL, nullable(f.ContentType), f.SizeBytes, f.CreatedAt)
	return err
}

func scanFileMetadata(scan func(dest ...any) error) (domain.FileMetadata, error) {
	var f domain.FileMetadata
	var contentType sql.NullString
	err := scan(&f.ID, &f.Bucket, &f.Path, &f.PublicURL, &contentType, &f.SizeBytes, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if contentType.Valid {
		f.ContentType = contentType.String
	}
	return f, err
}

func (r Repo) GetFileMetadata(ctx context.Context, id string) (domain.FileMetadata, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+fileCols+` FROM file_metadata WHERE id=?`, id)
	return scanFileMetadata(row.Scan)
}

func (r Repo) DeleteFileMetadataByURLsTx(ctx context.Context, tx *sql.Tx, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM file_metadata WHERE public_url IN (%s)`, placeholders(len(urls))), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r Repo) InsertTaskFileTx(ctx context.Context, tx *sql.Tx, tf domain.TaskFile) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_files(task_id, file_id, created_at) VALUES (?,?,?)`,
		tf.TaskID, tf.FileID, tf.CreatedAt)
	return err
}

func (r Repo) ListTaskFiles(ctx context.Context, taskID string) ([]domain.TaskFile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id, file_id, created_at FROM task_files WHERE task_id=?`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskFile
	for rows.Next() {
		var tf domain.TaskFile
		if err := rows.Scan(&tf.TaskID, &tf.FileID, &tf.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, tf)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTaskFile(ctx context.Context, taskID, fileID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM task_files WHERE task_id=? AND file_id=?`, taskID, fileID)
	return err
}

func (r Repo) DeleteTaskFilesByTasksTx(ctx context.Context, tx *sql.Tx, taskIDs []string) (int, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM task_files WHERE task_id IN (%s)`, placeholders(len(taskIDs))), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
