// internal/journal/sqlite.go
//
// SQLite-backed Journal.
// Responsibilities:
//   - Opening the database with safe defaults (WAL, busy timeout, foreign keys).
//   - Applying the embedded sql/*.sql migrations (idempotent, recorded in _migrations).
//   - Session and move queries for the observer API.

package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

type sqliteJournal struct {
	db *sql.DB
}

// OpenSQLite opens (creating if missing) the journal database at dsn and
// applies migrations.
func OpenSQLite(dsn string) (Journal, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteJournal{db: db}, nil
}

// openDB opens a SQLite database file, creating its parent directory for
// relative DSNs such as ./data/journal.db.
func openDB(dsn string) (*sql.DB, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

// migrate applies embedded migrations in lexical order, each in its own
// transaction, skipping files already listed in _migrations.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	files, err := migrationFiles()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	for _, f := range files {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", f).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		sqlBytes, err := migrationsFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		log.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

func (j *sqliteJournal) OpenSession(ctx context.Context, s Session) error {
	if s.Outcome == "" {
		s.Outcome = OutcomeActive
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (id, remote, started_at, outcome) VALUES (?,?,?,?)`,
		s.ID, s.Remote, formatTime(s.StartedAt), s.Outcome,
	)
	return err
}

// RecordMove inserts the move and bumps the session's move counter when the
// move was applied, in one transaction.
func (j *sqliteJournal) RecordMove(ctx context.Context, m Move) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET moves = moves + ? WHERE id=?`, applied(m), m.SessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO moves (session_id, seq, direction, robot_row, robot_col, state, error, at)
        VALUES (?,?,?,?,?,?,?,?)`,
		m.SessionID, m.Seq, m.Direction, m.Robot.Row, m.Robot.Col, m.State, nullable(m.Err), formatTime(m.At),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (j *sqliteJournal) CloseSession(ctx context.Context, id, outcome string, at time.Time) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE sessions SET outcome=?, ended_at=? WHERE id=?`, outcome, formatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (j *sqliteJournal) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT id, remote, started_at, COALESCE(ended_at,''), moves, outcome
        FROM sessions
        ORDER BY started_at DESC
        LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Session, 0, limit)
	for rows.Next() {
		var s Session
		var started, ended string
		if err := rows.Scan(&s.ID, &s.Remote, &started, &ended, &s.Moves, &s.Outcome); err != nil {
			return nil, err
		}
		s.StartedAt = parseTime(started)
		if ended != "" {
			t := parseTime(ended)
			s.EndedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (j *sqliteJournal) Moves(ctx context.Context, sessionID string) ([]Move, error) {
	var exists int
	if err := j.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id=?`, sessionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rows, err := j.db.QueryContext(ctx, `
        SELECT seq, direction, robot_row, robot_col, state, COALESCE(error,''), at
        FROM moves WHERE session_id=? ORDER BY seq ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Move{}
	for rows.Next() {
		m := Move{SessionID: sessionID}
		var at string
		if err := rows.Scan(&m.Seq, &m.Direction, &m.Robot.Row, &m.Robot.Col, &m.State, &m.Err, &at); err != nil {
			return nil, err
		}
		m.At = parseTime(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (j *sqliteJournal) Close() error { return j.db.Close() }

func applied(m Move) int {
	if m.Err != "" {
		return 0
	}
	return 1
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeLayout keeps a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// parseTime parses RFC3339 timestamps; on error returns zero time.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
