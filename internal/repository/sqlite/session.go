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

var _ repository.SessionRepository = (*DB)(nil)

func (db *DB) CreateSession(ctx context.Context, session *model.Session) error {
	session.ID = xid.New().String()
	now := time.Now()
	session.IssuedAt = now
	session.LastActiveAt = now
	session.IsActive = true

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token, is_active, issued_at, last_active_at, ip, user_agent)
		 VALUES (?, ?, ?, 1, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Token,
		session.IssuedAt,
		session.LastActiveAt,
		session.IP,
		session.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session for user %s: %w", session.UserID, err)
	}

	return nil
}

// GetActiveSession returns the active session bound to the exact token
// string. A revoked or unknown token is NotFound; the caller translates
// that into "session revoked" for the API.
func (db *DB) GetActiveSession(ctx context.Context, token string) (*model.Session, error) {
	var s model.Session
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, token, is_active, issued_at, last_active_at, ip, user_agent
		 FROM sessions WHERE token = ? AND is_active = 1`,
		token,
	).Scan(
		&s.ID, &s.UserID, &s.Token, &s.IsActive,
		&s.IssuedAt, &s.LastActiveAt, &s.IP, &s.UserAgent,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("session", "token")
		}
		return nil, fmt.Errorf("sqlite: getting session: %w", err)
	}

	return &s, nil
}

// TouchSession refreshes last_active_at. A zero-row update is fine, the
// session may have been revoked between verify and touch.
func (db *DB) TouchSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE token = ? AND is_active = 1`,
		time.Now(), token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching session: %w", err)
	}
	return nil
}

// DeactivateSession marks the session inactive. Idempotent: unknown or
// already-inactive tokens are not an error, so a double logout is harmless.
func (db *DB) DeactivateSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0 WHERE token = ?`,
		token,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deactivating session: %w", err)
	}
	return nil
}

func (db *DB) DeactivateUserSessions(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0 WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deactivating sessions of user %s: %w", userID, err)
	}
	return nil
}

// ListSessions returns sessions joined with the owner's username, most
// recently active first. An unknown username filter matches nothing rather
// than erroring; the admin is searching, not asserting.
func (db *DB) ListSessions(ctx context.Context, filter repository.SessionFilter) ([]model.SessionInfo, error) {
	query := `SELECT s.id, s.user_id, u.username, s.is_active, s.issued_at, s.last_active_at, s.ip, s.user_agent
	          FROM sessions s JOIN users u ON u.id = s.user_id`
	var (
		where []string
		args  []any
	)
	if filter.Username != "" {
		where = append(where, "u.username = ?")
		args = append(args, filter.Username)
	}
	if filter.Active != nil {
		where = append(where, "s.is_active = ?")
		args = append(args, *filter.Active)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.last_active_at DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.SessionInfo{}
	for rows.Next() {
		var s model.SessionInfo
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Username, &s.IsActive,
			&s.IssuedAt, &s.LastActiveAt, &s.IP, &s.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: listing sessions: %w", err)
	}

	return sessions, nil
}
