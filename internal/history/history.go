package history

import (
	"context"
	"database/sql"
	"time"
)

// Run is one load-test execution as persisted by a Sink.
type Run struct {
	ID        string         `json:"id"`
	Unit      string         `json:"unit"`
	Script    string         `json:"script"`
	VUs       int            `json:"vus"`
	PID       int            `json:"pid"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt sql.NullTime   `json:"stopped_at"`
	ExitCode  sql.NullInt64  `json:"exit_code"`
	Error     sql.NullString `json:"error"`
}

// Sink persists run history. Implementations must be safe for concurrent use.
type Sink interface {
	EnsureSchema(ctx context.Context) error
	RecordStart(ctx context.Context, run Run) error
	RecordEnd(ctx context.Context, id string, stoppedAt time.Time, exitCode int, runErr error) error
	Recent(ctx context.Context, limit int) ([]Run, error)
	Close() error
}
