package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loadops/k6ctl/internal/config"
	"github.com/loadops/k6ctl/internal/history"
	"github.com/loadops/k6ctl/internal/metrics"
	"github.com/loadops/k6ctl/internal/relation"
	"github.com/loadops/k6ctl/internal/workload"
)

// Trigger identifies what caused a reconciliation pass.
type Trigger string

const (
	TriggerConfig     Trigger = "config"
	TriggerRelation   Trigger = "relation"
	TriggerLeadership Trigger = "leadership"
	TriggerTimer      Trigger = "timer"
	TriggerExit       Trigger = "exit"
)

// Unit status kinds, matching the platform's status surface.
const (
	StatusActive  = "active"
	StatusBlocked = "blocked"
	StatusWaiting = "waiting"
)

// UnitStatus is the published unit status derived from the supervisor record
// and config validity.
type UnitStatus struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

func (u UnitStatus) String() string {
	if u.Reason == "" {
		return u.Kind
	}
	return u.Kind + ": " + u.Reason
}

// ScriptFileName is the fixed on-disk name of the materialized script. The
// workload always runs this one file; config changes rewrite it in place.
const ScriptFileName = "config-script.js"

// Reconciler converges actual workload state to the state described by the
// config snapshot and relation view. Passes are strictly serialized: one
// mutex guards every pass, whether triggered by an event, the timer, or a
// direct action.
type Reconciler struct {
	loader *config.Loader
	broker *relation.Broker
	sup    *workload.Supervisor
	sink   history.Sink
	log    *slog.Logger

	events chan Trigger

	mu              sync.Mutex // at-most-one reconciliation in flight
	lastFingerprint string

	stMu   sync.RWMutex
	status UnitStatus
}

type Option func(*Reconciler)

// WithHistory attaches a run-history sink.
func WithHistory(s history.Sink) Option {
	return func(r *Reconciler) { r.sink = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

func New(loader *config.Loader, broker *relation.Broker, sup *workload.Supervisor, opts ...Option) *Reconciler {
	r := &Reconciler{
		loader: loader,
		broker: broker,
		sup:    sup,
		log:    slog.Default(),
		events: make(chan Trigger, 16),
		status: UnitStatus{Kind: StatusWaiting, Reason: "not reconciled yet"},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Poke enqueues a reconciliation for the given trigger. Non-blocking: when
// the queue is full a pass is already pending and the event coalesces.
func (r *Reconciler) Poke(t Trigger) {
	select {
	case r.events <- t:
	default:
	}
}

// Status returns the most recently published unit status.
func (r *Reconciler) Status() UnitStatus {
	r.stMu.RLock()
	defer r.stMu.RUnlock()
	return r.status
}

// Run drives the loop until ctx is cancelled: queued events, the periodic
// timer, and workload exits all funnel into serialized reconcile passes.
func (r *Reconciler) Run(ctx context.Context) {
	interval := 30 * time.Second
	if snap, err := r.loader.Load(); err == nil && snap.ReconcileInterval > 0 {
		interval = snap.ReconcileInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.reconcile(ctx, TriggerConfig)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.events:
			r.reconcile(ctx, t)
		case <-ticker.C:
			r.reconcile(ctx, TriggerTimer)
		case ex := <-r.sup.Exits():
			r.handleExit(ctx, ex)
			r.reconcile(ctx, TriggerExit)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, t Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	begin := time.Now()
	metrics.IncReconcile(string(t))
	defer func() { metrics.ObserveReconcile(time.Since(begin).Seconds()) }()

	snap, err := r.loader.Load()
	if err != nil {
		r.log.Warn("config load failed", "error", err)
		r.publish(UnitStatus{Kind: StatusBlocked, Reason: err.Error()}, workload.StateNotStarted)
		return
	}
	view := r.broker.View()

	scriptPath, err := r.materializeScript(snap)
	if err != nil {
		r.publish(UnitStatus{Kind: StatusBlocked, Reason: "script: " + err.Error()}, r.sup.Status().State)
		return
	}

	des := desiredState(snap, view, scriptPath)
	rec := r.sup.Status()

	var status UnitStatus
	switch {
	case !snap.HasScript():
		if rec.State == workload.StateRunning {
			r.log.Info("script removed from config; stopping workload", "pid", rec.PID)
			_ = r.sup.Stop(snap.StopGrace)
		}
		r.sup.Reset()
		r.lastFingerprint = ""
		status = UnitStatus{Kind: StatusWaiting, Reason: "no load-test script configured"}

	case rec.State == workload.StateRunning && des.fingerprint != r.lastFingerprint:
		r.log.Info("desired state changed while running; restarting workload",
			"trigger", t, "pid", rec.PID)
		_ = r.sup.Stop(snap.StopGrace)
		if err := r.start(ctx, snap, des); err != nil {
			status = UnitStatus{Kind: StatusBlocked, Reason: "restart failed: " + err.Error()}
			break
		}
		metrics.IncRestart()
		status = UnitStatus{Kind: StatusActive, Reason: fmt.Sprintf("load test running (pid %d)", r.sup.Status().PID)}

	case rec.State == workload.StateRunning:
		status = UnitStatus{Kind: StatusActive, Reason: fmt.Sprintf("load test running (pid %d)", rec.PID)}

	case rec.State == workload.StateFailed:
		// Reconfiguration while Failed clears the record; the failure stays
		// surfaced only as long as the config that produced it is current.
		if des.fingerprint != r.lastFingerprint {
			r.sup.Reset()
			r.lastFingerprint = ""
			status = UnitStatus{Kind: StatusActive, Reason: "idle"}
			break
		}
		status = UnitStatus{Kind: StatusBlocked, Reason: fmt.Sprintf("last run failed (exit %d)", rec.ExitCode)}

	default:
		// New script while idle resets the record per the lifecycle contract.
		if r.lastFingerprint != "" && des.fingerprint != r.lastFingerprint {
			r.sup.Reset()
			r.lastFingerprint = ""
		}
		status = UnitStatus{Kind: StatusActive, Reason: "idle"}
	}

	if view.Conflict != "" {
		status = UnitStatus{Kind: StatusBlocked, Reason: fmt.Sprintf("relation %s: limit exceeded", view.Conflict)}
	}
	r.publish(status, r.sup.Status().State)
}

// StartRun launches a run with the current desired state. It shares the pass
// mutex with the loop so direct actions never overlap a reconciliation.
func (r *Reconciler) StartRun(ctx context.Context) (workload.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.loader.Load()
	if err != nil {
		r.publish(UnitStatus{Kind: StatusBlocked, Reason: err.Error()}, r.sup.Status().State)
		return workload.Record{}, err
	}
	if !snap.HasScript() {
		return r.sup.Status(), workload.ErrNoScript
	}
	if rec := r.sup.Status(); rec.State == workload.StateRunning {
		return rec, workload.ErrAlreadyRunning
	}
	scriptPath, err := r.materializeScript(snap)
	if err != nil {
		return r.sup.Status(), err
	}
	des := desiredState(snap, r.broker.View(), scriptPath)
	if err := r.start(ctx, snap, des); err != nil {
		r.publish(UnitStatus{Kind: StatusBlocked, Reason: "start failed: " + err.Error()}, r.sup.Status().State)
		return r.sup.Status(), err
	}
	rec := r.sup.Status()
	r.publish(UnitStatus{Kind: StatusActive, Reason: fmt.Sprintf("load test running (pid %d)", rec.PID)}, rec.State)
	return rec, nil
}

// StopRun stops the workload with the configured grace period.
func (r *Reconciler) StopRun(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	grace := 5 * time.Second
	if snap, err := r.loader.Load(); err == nil {
		grace = snap.StopGrace
	}
	if err := r.sup.Stop(grace); err != nil {
		return err
	}
	rec := r.sup.Status()
	r.publish(UnitStatus{Kind: StatusActive, Reason: "idle"}, rec.State)
	return nil
}

// start assumes the pass mutex is held and the workload is not running.
func (r *Reconciler) start(ctx context.Context, snap config.Snapshot, des desired) error {
	runID := uuid.NewString()
	args := append([]string(nil), des.args...)
	args = append(args,
		"--tag", "test_uuid="+runID,
		"--tag", "date="+time.Now().UTC().Format(time.RFC3339),
		"--tag", "unit="+snap.UnitName,
		"--tag", "script="+ScriptFileName,
	)
	spec := workload.Spec{
		RunID:      runID,
		Binary:     snap.K6Binary,
		ScriptPath: des.scriptPath,
		APIAddress: snap.APIAddress,
		ExtraArgs:  args,
		Env:        des.env,
		Log:        snap.Log,
	}
	// Recorded before the launch so a failed attempt pins the fingerprint:
	// the Failed record then persists until the config actually changes.
	r.lastFingerprint = des.fingerprint
	if err := r.sup.Start(spec); err != nil {
		return err
	}
	metrics.IncStart()
	rec := r.sup.Status()
	r.log.Info("workload started", "run_id", runID, "pid", rec.PID)
	if r.sink != nil {
		vus, _ := snap.VUs()
		run := history.Run{
			ID:        runID,
			Unit:      snap.UnitName,
			Script:    ScriptFileName,
			VUs:       vus,
			PID:       rec.PID,
			StartedAt: rec.StartedAt,
		}
		if err := r.sink.RecordStart(ctx, run); err != nil {
			r.log.Warn("history: record start failed", "error", err)
		}
	}
	return nil
}

func (r *Reconciler) handleExit(ctx context.Context, ex workload.Exit) {
	metrics.IncStop()
	if !ex.Stopped && ex.ExitCode != 0 {
		metrics.IncFailure()
	}
	r.log.Info("workload exited", "run_id", ex.RunID, "exit_code", ex.ExitCode, "stopped", ex.Stopped)
	if r.sink != nil && ex.RunID != "" {
		if err := r.sink.RecordEnd(ctx, ex.RunID, time.Now(), ex.ExitCode, ex.Err); err != nil {
			r.log.Warn("history: record end failed", "error", err)
		}
	}
}

// materializeScript writes the configured script under the scripts dir, or
// removes the file when the config no longer carries one.
func (r *Reconciler) materializeScript(snap config.Snapshot) (string, error) {
	path := filepath.Join(snap.ScriptsDir, ScriptFileName)
	if !snap.HasScript() {
		_ = os.Remove(path)
		return "", nil
	}
	if err := os.MkdirAll(snap.ScriptsDir, 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(snap.Script), 0o640); err != nil {
		return "", err
	}
	return path, nil
}

func (r *Reconciler) publish(st UnitStatus, procState workload.State) {
	r.stMu.Lock()
	r.status = st
	r.stMu.Unlock()
	for _, s := range []workload.State{
		workload.StateNotStarted, workload.StateRunning, workload.StateStopped, workload.StateFailed,
	} {
		metrics.SetState(string(s), s == procState)
	}
}
