// Package history provides a local SQLite cache of backend sessions, the
// last active session per server and the prompts sent from this machine.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tide-dev/tide/internal/model"
)

// FileName is the database file name inside the config directory.
const FileName = "history.db"

// Store provides SQLite-backed persistence for the session cache.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates tables if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		server TEXT NOT NULL,
		id TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		parent_id TEXT NOT NULL DEFAULT '',
		share_url TEXT NOT NULL DEFAULT '',
		created_ms INTEGER NOT NULL DEFAULT 0,
		updated_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (server, id)
	);

	CREATE TABLE IF NOT EXISTS last_active (
		server TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS prompts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server TEXT NOT NULL,
		session_id TEXT NOT NULL,
		text TEXT NOT NULL,
		sent_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSessions replaces the cached session list for server.
func (s *Store) SaveSessions(server string, sessions []model.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM sessions WHERE server = ?`, server); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO sessions
		 (server, id, project_id, title, parent_id, share_url, created_ms, updated_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, sess := range sessions {
		if _, err := stmt.Exec(sessionArgs(server, sess)...); err != nil {
			return fmt.Errorf("insert session %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sessions: %w", err)
	}
	return nil
}

// UpsertSession caches or refreshes a single session.
func (s *Store) UpsertSession(server string, sess model.Session) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sessions
		 (server, id, project_id, title, parent_id, share_url, created_ms, updated_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionArgs(server, sess)...,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func sessionArgs(server string, sess model.Session) []any {
	share := ""
	if sess.Share != nil {
		share = sess.Share.URL
	}
	return []any{
		server, sess.ID, sess.ProjectID, sess.Title, sess.ParentID, share,
		sess.Time.Created, sess.Time.Updated,
	}
}

// ListSessions returns the cached sessions for server, most recently
// updated first. A limit of zero or less returns all of them.
func (s *Store) ListSessions(server string, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, project_id, title, parent_id, share_url, created_ms, updated_ms
		 FROM sessions
		 WHERE server = ?
		 ORDER BY updated_ms DESC, id ASC
		 LIMIT ?`,
		server, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		var share string
		if err := rows.Scan(&sess.ID, &sess.ProjectID, &sess.Title, &sess.ParentID, &share,
			&sess.Time.Created, &sess.Time.Updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if share != "" {
			sess.Share = &model.Share{URL: share}
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// DeleteSession removes a session from the cache and clears it as the
// last active session.
func (s *Store) DeleteSession(server, id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE server = ? AND id = ?`, server, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM last_active WHERE server = ? AND session_id = ?`, server, id); err != nil {
		return fmt.Errorf("clear last active: %w", err)
	}
	return nil
}

// SetLastActive records the session the user last opened on server.
func (s *Store) SetLastActive(server, sessionID string) error {
	_, err := s.db.Exec(
		`INSERT INTO last_active (server, session_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(server) DO UPDATE SET session_id = excluded.session_id, updated_at = excluded.updated_at`,
		server, sessionID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set last active: %w", err)
	}
	return nil
}

// LastActive returns the session last opened on server, or "" if none.
func (s *Store) LastActive(server string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT session_id FROM last_active WHERE server = ?`, server).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last active: %w", err)
	}
	return id, nil
}

// RecordPrompt stores text sent to a session.
func (s *Store) RecordPrompt(server, sessionID, text string) error {
	_, err := s.db.Exec(
		`INSERT INTO prompts (server, session_id, text, sent_at) VALUES (?, ?, ?, ?)`,
		server, sessionID, text, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	return nil
}

// RecentPrompts returns up to limit prompts sent to server, newest first.
func (s *Store) RecentPrompts(server string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT text FROM prompts WHERE server = ? ORDER BY id DESC LIMIT ?`,
		server, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var prompts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, text)
	}
	return prompts, rows.Err()
}

// PruneSessions removes cached sessions last updated before cutoff.
func (s *Store) PruneSessions(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// PrunePrompts keeps the newest keep prompts per server and removes the rest.
func (s *Store) PrunePrompts(keep int) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM prompts WHERE id NOT IN (
			SELECT p.id FROM prompts p WHERE p.server = prompts.server ORDER BY p.id DESC LIMIT ?
		)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune prompts: %w", err)
	}
	return res.RowsAffected()
}

// CountPrunable reports how many rows PruneSessions and PrunePrompts would
// remove.
func (s *Store) CountPrunable(cutoff time.Time, keep int) (sessions, prompts int64, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE updated_ms < ?`, cutoff.UnixMilli()).Scan(&sessions); err != nil {
		return 0, 0, fmt.Errorf("count sessions: %w", err)
	}
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM prompts WHERE id NOT IN (
			SELECT p.id FROM prompts p WHERE p.server = prompts.server ORDER BY p.id DESC LIMIT ?
		)`,
		keep,
	).Scan(&prompts)
	if err != nil {
		return 0, 0, fmt.Errorf("count prompts: %w", err)
	}
	return sessions, prompts, nil
}
