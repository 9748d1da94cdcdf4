package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loadops/k6ctl/internal/history"
)

// DB implements history.Sink for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path; use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// single connection: :memory: would otherwise get one database per
	// pooled connection, and the writer is single anyway
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_history(
			id TEXT PRIMARY KEY,
			unit TEXT NOT NULL,
			script TEXT NOT NULL,
			vus INTEGER NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			stopped_at TIMESTAMP NULL,
			exit_code INTEGER NULL,
			error TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_started ON run_history(started_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) RecordStart(ctx context.Context, run history.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history(id, unit, script, vus, pid, started_at, stopped_at, exit_code, error)
		VALUES(?, ?, ?, ?, ?, ?, NULL, NULL, NULL)
		ON CONFLICT(id) DO UPDATE SET
			unit=excluded.unit,
			script=excluded.script,
			vus=excluded.vus,
			pid=excluded.pid,
			started_at=excluded.started_at,
			stopped_at=NULL,
			exit_code=NULL,
			error=NULL;`,
		run.ID, run.Unit, run.Script, run.VUs, run.PID, run.StartedAt.UTC())
	return err
}

func (s *DB) RecordEnd(ctx context.Context, id string, stoppedAt time.Time, exitCode int, runErr error) error {
	var errStr sql.NullString
	if runErr != nil {
		errStr = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE run_history
		SET stopped_at=?, exit_code=?, error=?
		WHERE id=?;`,
		stoppedAt.UTC(), exitCode, errStr, id)
	return err
}

func (s *DB) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unit, script, vus, pid, started_at, stopped_at, exit_code, error
		FROM run_history
		ORDER BY started_at DESC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]history.Run, error) {
	out := make([]history.Run, 0)
	for rows.Next() {
		var r history.Run
		if err := rows.Scan(&r.ID, &r.Unit, &r.Script, &r.VUs, &r.PID, &r.StartedAt, &r.StoppedAt, &r.ExitCode, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
