package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loadops/k6ctl/internal/history"
)

// DB implements history.Sink on PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run_history(
			id TEXT PRIMARY KEY,
			unit TEXT NOT NULL,
			script TEXT NOT NULL,
			vus INTEGER NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			stopped_at TIMESTAMPTZ NULL,
			exit_code INTEGER NULL,
			error TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_started ON run_history(started_at);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) RecordStart(ctx context.Context, run history.Run) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO run_history(id, unit, script, vus, pid, started_at, stopped_at, exit_code, error)
		VALUES($1,$2,$3,$4,$5,$6,NULL,NULL,NULL)
		ON CONFLICT(id) DO UPDATE SET
			unit=EXCLUDED.unit,
			script=EXCLUDED.script,
			vus=EXCLUDED.vus,
			pid=EXCLUDED.pid,
			started_at=EXCLUDED.started_at,
			stopped_at=NULL,
			exit_code=NULL,
			error=NULL;`,
		run.ID, run.Unit, run.Script, run.VUs, run.PID, run.StartedAt.UTC())
	return err
}

func (p *DB) RecordEnd(ctx context.Context, id string, stoppedAt time.Time, exitCode int, runErr error) error {
	var errStr sql.NullString
	if runErr != nil {
		errStr = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE run_history
		SET stopped_at=$1, exit_code=$2, error=$3
		WHERE id=$4;`,
		stoppedAt.UTC(), exitCode, errStr, id)
	return err
}

func (p *DB) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, unit, script, vus, pid, started_at, stopped_at, exit_code, error
		FROM run_history
		ORDER BY started_at DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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
