package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loadops/k6ctl/internal/history"
)

// Sink implements history.Sink on ClickHouse using the official Go client.
// Rows are append-only: run end is a second event row for the same id, and
// Recent picks the latest row per id.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(dsn, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if table == "" {
		table = "k6_run_history"
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id String,
		event String,
		occurred_at DateTime64(3),
		unit String,
		script String,
		vus Int32,
		pid Int32,
		started_at DateTime64(3),
		stopped_at Nullable(DateTime64(3)),
		exit_code Nullable(Int32),
		error Nullable(String)
	) ENGINE = MergeTree ORDER BY (started_at, id)`, s.table)
	return s.conn.Exec(ctx, q)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) RecordStart(ctx context.Context, run history.Run) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, event, occurred_at, unit, script, vus, pid, started_at, stopped_at, exit_code, error)
		VALUES (?, 'started', ?, ?, ?, ?, ?, ?, NULL, NULL, NULL)`, s.table)
	if err := s.conn.Exec(ctx, q, run.ID, time.Now().UTC(), run.Unit, run.Script, int32(run.VUs), int32(run.PID), run.StartedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert run start into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) RecordEnd(ctx context.Context, id string, stoppedAt time.Time, exitCode int, runErr error) error {
	var errStr *string
	if runErr != nil {
		e := runErr.Error()
		errStr = &e
	}
	// The end row repeats the id; start fields are recovered by Recent's
	// latest-row-per-id read, so only exit data matters here.
	q := fmt.Sprintf(`INSERT INTO %s (id, event, occurred_at, unit, script, vus, pid, started_at, stopped_at, exit_code, error)
		SELECT id, 'finished', ?, unit, script, vus, pid, started_at, ?, ?, ?
		FROM %s WHERE id = ? ORDER BY occurred_at DESC LIMIT 1`, s.table, s.table)
	if err := s.conn.Exec(ctx, q, time.Now().UTC(), stoppedAt.UTC(), int32(exitCode), errStr, id); err != nil {
		return fmt.Errorf("failed to insert run end into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT id, unit, script, vus, pid, started_at, stopped_at, exit_code, error
		FROM %s ORDER BY occurred_at DESC LIMIT 1 BY id LIMIT %d`, s.table, limit)
	rows, err := s.conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query ClickHouse run history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]history.Run, 0)
	for rows.Next() {
		var (
			r         history.Run
			vus, pid  int32
			stoppedAt *time.Time
			exitCode  *int32
			errStr    *string
		)
		if err := rows.Scan(&r.ID, &r.Unit, &r.Script, &vus, &pid, &r.StartedAt, &stoppedAt, &exitCode, &errStr); err != nil {
			return nil, err
		}
		r.VUs = int(vus)
		r.PID = int(pid)
		if stoppedAt != nil {
			r.StoppedAt.Time, r.StoppedAt.Valid = *stoppedAt, true
		}
		if exitCode != nil {
			r.ExitCode.Int64, r.ExitCode.Valid = int64(*exitCode), true
		}
		if errStr != nil {
			r.Error.String, r.Error.Valid = *errStr, true
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
