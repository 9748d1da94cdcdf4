package action

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/loadops/k6ctl/internal/config"
	"github.com/loadops/k6ctl/internal/history"
	"github.com/loadops/k6ctl/internal/reconcile"
	"github.com/loadops/k6ctl/internal/relation"
	"github.com/loadops/k6ctl/internal/workload"
)

// Result statuses. Every dispatched action yields a structured Result;
// failures never escape as faults.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is the transient outcome of one dispatched action.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

var (
	// ErrNotLeader rejects mutating actions on non-leader units before any
	// side effect.
	ErrNotLeader = errors.New("action must be run on the leader unit")
	// ErrUnknownAction rejects actions outside the start/stop/list surface.
	ErrUnknownAction = errors.New("unknown action")
)

// Dispatcher maps externally invoked commands onto the reconciler and
// supervisor, bypassing full reconciliation for direct user commands.
type Dispatcher struct {
	loader *config.Loader
	broker *relation.Broker
	rec    *reconcile.Reconciler
	sup    *workload.Supervisor
	sink   history.Sink // optional; enriches list with past runs
}

func NewDispatcher(loader *config.Loader, broker *relation.Broker, rec *reconcile.Reconciler, sup *workload.Supervisor, sink history.Sink) *Dispatcher {
	return &Dispatcher{loader: loader, broker: broker, rec: rec, sup: sup, sink: sink}
}

// Dispatch routes an action by name. args is reserved for future parameters;
// the current surface takes none.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]string) Result {
	switch name {
	case "start":
		return d.start(ctx)
	case "stop":
		return d.stop(ctx)
	case "list":
		return d.list(ctx)
	default:
		return errResult(fmt.Errorf("%w: %s", ErrUnknownAction, name))
	}
}

func (d *Dispatcher) start(ctx context.Context) Result {
	// Leadership is checked before any mutating call.
	if !d.broker.View().Leader {
		return errResult(ErrNotLeader)
	}
	rec, err := d.rec.StartRun(ctx)
	switch {
	case errors.Is(err, workload.ErrAlreadyRunning):
		// Policy: no-op, report the current run.
		return okResult(fmt.Sprintf("load test already running (pid %d)", rec.PID))
	case errors.Is(err, workload.ErrNoScript):
		return errResult(workload.ErrNoScript)
	case err != nil:
		return errResult(err)
	}
	return okResult(fmt.Sprintf("started load test (pid %d)", rec.PID))
}

func (d *Dispatcher) stop(ctx context.Context) Result {
	if err := d.rec.StopRun(ctx); err != nil {
		return errResult(err)
	}
	return okResult("load test stopped")
}

func (d *Dispatcher) list(ctx context.Context) Result {
	snap, err := d.loader.Load()
	if err != nil {
		return errResult(err)
	}
	var b strings.Builder
	if snap.HasScript() {
		b.WriteString("scripts:\n  " + reconcile.ScriptFileName)
		if vus, ok := snap.VUs(); ok {
			b.WriteString(" (vus: " + strconv.Itoa(vus) + ")")
		}
	} else {
		b.WriteString("scripts: none configured")
	}
	if d.sink != nil {
		runs, err := d.sink.Recent(ctx, 10)
		if err == nil && len(runs) > 0 {
			b.WriteString("\nrecent runs:")
			for _, r := range runs {
				b.WriteString("\n  " + r.ID + " " + r.StartedAt.Format("2006-01-02 15:04:05"))
				if r.ExitCode.Valid {
					b.WriteString(" exit=" + strconv.FormatInt(r.ExitCode.Int64, 10))
				}
			}
		}
	}
	return okResult(b.String())
}

func okResult(msg string) Result { return Result{Status: StatusOK, Message: msg} }

func errResult(err error) Result { return Result{Status: StatusError, Message: err.Error()} }
