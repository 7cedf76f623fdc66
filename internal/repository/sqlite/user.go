package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
)

// Compile-time check that *DB implements repository.UserRepository.
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user. The username UNIQUE constraint is the
// duplicate check; we translate its violation into a Conflict error rather
// than racing a SELECT against concurrent registrations.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, is_admin, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.IsAdmin,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("username %q is already taken", user.Username))
		}
		return fmt.Errorf("sqlite: creating user %q: %w", user.Username, err)
	}

	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `WHERE id = ?`, id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, `WHERE username = ?`, username)
}

func (db *DB) getUser(ctx context.Context, where string, arg string) (*model.User, error) {
	var u model.User
	var lastLogin sql.NullTime

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, is_admin, is_active, created_at, last_login_at
		 FROM users `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.IsActive,
		&u.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", arg)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", arg, err)
	}

	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

// UpdateUser writes username, password hash, flags, and last-login back to
// the row. ID and created_at are immutable.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, password_hash = ?, is_admin = ?, is_active = ?, last_login_at = ?
		 WHERE id = ?`,
		user.Username,
		user.PasswordHash,
		user.IsAdmin,
		user.IsActive,
		nullableTime(user.LastLoginAt),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("username %q is already taken", user.Username))
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// DeleteUser removes the user and everything they own in one transaction:
// sessions, files, projects, then the user row. All-or-nothing: a failure
// mid-way rolls the whole cascade back. Disk cleanup is the caller's job
// (it is best-effort and must not abort the delete).
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete of user %s: %w", id, err)
	}
	defer tx.Rollback()

	// Children first, so the foreign keys stay satisfied throughout.
	for _, stmt := range []string{
		`DELETE FROM sessions WHERE user_id = ?`,
		`DELETE FROM files WHERE user_id = ?`,
		`DELETE FROM projects WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("sqlite: cascading delete of user %s: %w", id, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of user %s: %w", id, err)
	}
	return nil
}

// ListUsers returns one page of users matching the optional username
// substring, newest first, with derived counts computed by correlated
// subqueries, plus the total matching count for the pagination envelope.
func (db *DB) ListUsers(ctx context.Context, search string, opts repository.ListOptions) ([]model.UserOverview, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = `WHERE u.username LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(search)+"%")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users u `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting users: %w", err)
	}

	query := `
		SELECT u.id, u.username, u.is_admin, u.is_active, u.created_at, u.last_login_at,
		       (SELECT COUNT(*) FROM projects p WHERE p.user_id = u.id),
		       (SELECT COUNT(*) FROM files f WHERE f.user_id = u.id),
		       EXISTS (SELECT 1 FROM sessions s WHERE s.user_id = u.id AND s.is_active = 1)
		FROM users u ` + where + `
		ORDER BY u.created_at DESC
		LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.UserOverview, 0, opts.Limit)
	for rows.Next() {
		var u model.UserOverview
		var lastLogin sql.NullTime
		if err := rows.Scan(
			&u.ID, &u.Username, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &lastLogin,
			&u.ProjectCount, &u.FileCount, &u.Online,
		); err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		if lastLogin.Valid {
			u.LastLoginAt = &lastLogin.Time
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, total, nil
}

// isUniqueViolation detects SQLite UNIQUE constraint failures.
// modernc.org/sqlite surfaces them as "constraint failed: UNIQUE ..." in the
// error text; matching the message avoids importing the driver's error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike neutralizes LIKE wildcards in user-supplied search terms so a
// search for "100%" doesn't match everything.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
