package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
)

var _ repository.FileRepository = (*DB)(nil)

// UpsertFile inserts the file, or updates in place when a row with the same
// (project_id, path) exists; re-submitting a path never duplicates it.
//
// ON CONFLICT DO UPDATE keeps the original id and created_at; content,
// binary flag, size, and updated_at are replaced. We select the row back
// afterwards so the caller's struct carries the canonical id/timestamps
// whichever branch ran.
func (db *DB) UpsertFile(ctx context.Context, file *model.File) error {
	now := time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO files (id, project_id, user_id, path, content, is_binary, size, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, path) DO UPDATE SET
		   content = excluded.content,
		   is_binary = excluded.is_binary,
		   size = excluded.size,
		   updated_at = excluded.updated_at`,
		xid.New().String(),
		file.ProjectID,
		file.UserID,
		file.Path,
		nullableContent(file),
		file.IsBinary,
		file.Size,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting file %s in project %s: %w", file.Path, file.ProjectID, err)
	}

	var content sql.NullString
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, content
		 FROM files WHERE project_id = ? AND path = ?`,
		file.ProjectID, file.Path,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt, &content)
	if err != nil {
		return fmt.Errorf("sqlite: fetching upserted file %s: %w", file.Path, err)
	}
	file.Content = content.String

	return nil
}

func (db *DB) GetFileByID(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	var content sql.NullString

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, project_id, user_id, path, content, is_binary, size, created_at, updated_at
		 FROM files WHERE id = ?`,
		id,
	).Scan(
		&f.ID, &f.ProjectID, &f.UserID, &f.Path,
		&content, &f.IsBinary, &f.Size, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("file", id)
		}
		return nil, fmt.Errorf("sqlite: getting file %s: %w", id, err)
	}

	f.Content = content.String
	return &f, nil
}

func (db *DB) ListProjectFiles(ctx context.Context, projectID string) ([]model.File, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, project_id, user_id, path, is_binary, size, created_at, updated_at
		 FROM files WHERE project_id = ?
		 ORDER BY path`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing files of project %s: %w", projectID, err)
	}
	defer rows.Close()

	// Content is deliberately not selected, listings carry metadata only.
	files := []model.File{}
	for rows.Next() {
		var f model.File
		if err := rows.Scan(
			&f.ID, &f.ProjectID, &f.UserID, &f.Path,
			&f.IsBinary, &f.Size, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating files: %w", err)
	}

	return files, nil
}

// UpdateFile writes content, classification, and size back to the row and
// stamps updated_at. Path and ownership are immutable here.
func (db *DB) UpdateFile(ctx context.Context, file *model.File) error {
	file.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE files SET content = ?, is_binary = ?, size = ?, updated_at = ?
		 WHERE id = ?`,
		nullableContent(file),
		file.IsBinary,
		file.Size,
		file.UpdatedAt,
		file.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating file %s: %w", file.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("file", file.ID)
	}

	return nil
}

func (db *DB) DeleteFile(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting file %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("file", id)
	}

	return nil
}

// ListAllFiles is the admin cross-user listing: files joined with owner and
// project names, newest-updated first.
func (db *DB) ListAllFiles(ctx context.Context, filter repository.FileFilter, opts repository.ListOptions) ([]model.FileInfo, int, error) {
	where := `WHERE 1=1`
	args := []any{}

	if filter.UserID != "" {
		where += ` AND f.user_id = ?`
		args = append(args, filter.UserID)
	}
	switch filter.Type {
	case "text":
		where += ` AND f.is_binary = 0`
	case "binary":
		where += ` AND f.is_binary = 1`
	}
	if filter.Search != "" {
		where += ` AND (f.path LIKE ? ESCAPE '\' OR p.name LIKE ? ESCAPE '\' OR u.username LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(filter.Search) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	from := `
		FROM files f
		JOIN projects p ON p.id = f.project_id
		JOIN users u ON u.id = f.user_id `

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) `+from+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting files: %w", err)
	}

	query := `
		SELECT f.id, f.project_id, f.user_id, f.path, f.is_binary, f.size,
		       f.created_at, f.updated_at, u.username, p.name ` +
		from + where + `
		ORDER BY f.updated_at DESC
		LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing all files: %w", err)
	}
	defer rows.Close()

	files := make([]model.FileInfo, 0, opts.Limit)
	for rows.Next() {
		var f model.FileInfo
		if err := rows.Scan(
			&f.ID, &f.ProjectID, &f.UserID, &f.Path, &f.IsBinary, &f.Size,
			&f.CreatedAt, &f.UpdatedAt, &f.Username, &f.ProjectName,
		); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning file info row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating file infos: %w", err)
	}

	return files, total, nil
}

// nullableContent maps a binary file's content to SQL NULL. The invariant
// is is_binary ⇒ content IS NULL, the bytes live only on disk.
func nullableContent(f *model.File) any {
	if f.IsBinary {
		return nil
	}
	return f.Content
}
