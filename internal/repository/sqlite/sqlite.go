// Package sqlite implements the repository interfaces on an embedded SQLite
// database.
//
// The driver is modernc.org/sqlite, a pure Go translation of SQLite, so no
// CGo and no C toolchain; the binary stays a single static file, which is
// what a classroom deployment wants.
//
// Durability knobs set at open time:
//   - journal_mode=WAL: concurrent reads while a write is in flight. The
//     server handles each request on its own goroutine, so this matters.
//   - foreign_keys=ON: referential integrity between users, projects, files,
//     and sessions (OFF by default in SQLite for backwards compatibility).
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository
// interface (user, project, file, session) on the one type, the same way a
// single database file holds every table.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force a real connection now: a bad path or permissions problem should
	// surface at startup, not on the first request.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// Writers queue instead of failing with SQLITE_BUSY when two requests
	// hit the same table at once.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent,
// so restarting against an existing database is safe.
//
// Constraint notes:
//   - users.username UNIQUE: global, case-sensitive as stored.
//   - projects UNIQUE(user_id, name): closes the find-or-create race: two
//     concurrent first submissions cannot create duplicate projects.
//   - files UNIQUE(project_id, path): re-submitting a path updates in place.
//   - sessions.token UNIQUE: one row per issued token string.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_admin      INTEGER NOT NULL DEFAULT 0,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			user_id    TEXT NOT NULL REFERENCES users(id),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, name)
		);
		CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects(user_id);

		CREATE TABLE IF NOT EXISTS files (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id),
			user_id    TEXT NOT NULL REFERENCES users(id),
			path       TEXT NOT NULL,
			content    TEXT,
			is_binary  INTEGER NOT NULL DEFAULT 0,
			size       INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (project_id, path)
		);
		CREATE INDEX IF NOT EXISTS idx_files_user_id ON files(user_id);
		CREATE INDEX IF NOT EXISTS idx_files_project_id ON files(project_id);

		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES users(id),
			token          TEXT NOT NULL UNIQUE,
			is_active      INTEGER NOT NULL DEFAULT 1,
			issued_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_active_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ip             TEXT NOT NULL DEFAULT '',
			user_agent     TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
