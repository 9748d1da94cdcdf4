package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loadops/k6ctl/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container (docker unavailable?): %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Second)
	run := history.Run{
		ID:        "run-pg-1",
		Unit:      "k6/0",
		Script:    "config-script.js",
		VUs:       20,
		PID:       1234,
		StartedAt: started,
	}
	if err := sink.RecordStart(ctx, run); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	if err := sink.RecordEnd(ctx, "run-pg-1", time.Now().UTC(), 0, nil); err != nil {
		t.Fatalf("RecordEnd: %v", err)
	}

	runs, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}
	got := runs[0]
	if got.ID != "run-pg-1" || got.VUs != 20 || got.PID != 1234 {
		t.Fatalf("run: %+v", got)
	}
	if !got.StoppedAt.Valid || !got.ExitCode.Valid || got.ExitCode.Int64 != 0 {
		t.Fatalf("end not recorded: %+v", got)
	}
}
