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

var _ repository.ProjectRepository = (*DB)(nil)

// FindOrCreateProject returns the project for (ownerID, name), creating it
// on first use.
//
// RACE SAFETY:
// Two requests can submit under the same brand-new project name at once.
// A naive SELECT-then-INSERT would create two rows. Instead we lean on the
// UNIQUE (user_id, name) constraint:
//
//	INSERT ... ON CONFLICT (user_id, name) DO NOTHING
//	SELECT the row back
//
// Whichever request wins the insert, both end up fetching the same row.
func (db *DB) FindOrCreateProject(ctx context.Context, ownerID, name string) (*model.Project, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO projects (id, name, user_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, name) DO NOTHING`,
		xid.New().String(),
		name,
		ownerID,
		time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting project %q for user %s: %w", name, ownerID, err)
	}

	var p model.Project
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, name, user_id, created_at
		 FROM projects WHERE user_id = ? AND name = ?`,
		ownerID, name,
	).Scan(&p.ID, &p.Name, &p.UserID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetching project %q for user %s: %w", name, ownerID, err)
	}

	return &p, nil
}

func (db *DB) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, user_id, created_at FROM projects WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.UserID, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("project", id)
		}
		return nil, fmt.Errorf("sqlite: getting project %s: %w", id, err)
	}
	return &p, nil
}

// ListProjects returns the owner's projects, newest first, each with its
// file count.
func (db *DB) ListProjects(ctx context.Context, ownerID string) ([]model.ProjectSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.id, p.name, p.created_at,
		        (SELECT COUNT(*) FROM files f WHERE f.project_id = p.id)
		 FROM projects p
		 WHERE p.user_id = ?
		 ORDER BY p.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects for user %s: %w", ownerID, err)
	}
	defer rows.Close()

	projects := []model.ProjectSummary{}
	for rows.Next() {
		var p model.ProjectSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.FileCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating projects: %w", err)
	}

	return projects, nil
}

// DeleteProject removes the project and its file rows in one transaction.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete of project %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting files of project %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("project", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of project %s: %w", id, err)
	}
	return nil
}
