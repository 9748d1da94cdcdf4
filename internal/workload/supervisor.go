package workload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// State is the lifecycle state of the single supervised process.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in flight.
	// Callers treat it as success: the current run is reported, not duplicated.
	ErrAlreadyRunning = errors.New("workload already running")
	// ErrNoScript is returned by Start when no script is configured.
	ErrNoScript = errors.New("no script configured")
)

// Record is the single process record per unit, owned exclusively by the
// Supervisor and mutated only through Start/Stop/Reset and the monitor.
type Record struct {
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

// Exit describes one observed process exit, delivered on the Exits channel.
type Exit struct {
	RunID    string
	ExitCode int
	Stopped  bool // the exit followed an explicit Stop
	Err      error
}

// Supervisor owns the lifecycle of the workload process. All state lives
// behind one mutex; the monitor goroutine is the only waiter on cmd.Wait,
// and exits are surfaced as events rather than cross-goroutine mutations.
type Supervisor struct {
	mu        sync.Mutex
	spec      Spec
	cmd       *exec.Cmd
	rec       Record
	starting  bool // launch in flight, before the record turns Running
	stopping  bool
	waitDone  chan struct{}
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	exits     chan Exit
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		rec:   Record{State: StateNotStarted},
		exits: make(chan Exit, 4),
	}
}

// Exits delivers one event per observed process exit. The channel is buffered;
// the reconcile loop is expected to drain it.
func (s *Supervisor) Exits() <-chan Exit { return s.exits }

// Status returns a copy of the current process record.
func (s *Supervisor) Status() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// Start launches the workload described by spec. Starting while Running or
// while another Start is mid-launch is rejected with ErrAlreadyRunning
// without spawning a second process.
func (s *Supervisor) Start(spec Spec) error {
	if spec.ScriptPath == "" {
		return ErrNoScript
	}
	s.mu.Lock()
	if s.rec.State == StateRunning || s.starting {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.starting = true
	s.spec = spec
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	s.attachOutput(cmd, spec)

	if err := cmd.Start(); err != nil {
		s.mu.Lock()
		s.closeWritersLocked()
		s.rec = Record{State: StateFailed, RunID: spec.RunID, Error: err.Error()}
		s.mu.Unlock()
		return fmt.Errorf("launch %s: %w", cmd.Path, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stopping = false
	s.waitDone = make(chan struct{})
	s.rec = Record{
		State:     StateRunning,
		PID:       cmd.Process.Pid,
		RunID:     spec.RunID,
		StartedAt: time.Now(),
	}
	wd := s.waitDone
	s.mu.Unlock()

	go s.monitor(cmd, spec.RunID, wd)
	return nil
}

// monitor is the single waiter for the current run. It records the exit,
// closes log writers, and publishes an exit event.
func (s *Supervisor) monitor(cmd *exec.Cmd, runID string, wd chan struct{}) {
	err := cmd.Wait()
	code := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	stopped := s.stopping
	s.rec.StoppedAt = time.Now()
	s.rec.ExitCode = code
	if err != nil {
		s.rec.Error = err.Error()
	}
	if stopped || code == 0 {
		s.rec.State = StateStopped
	} else {
		s.rec.State = StateFailed
	}
	s.closeWritersLocked()
	close(wd)
	s.mu.Unlock()

	select {
	case s.exits <- Exit{RunID: runID, ExitCode: code, Stopped: stopped, Err: err}:
	default:
	}
}

// Stop terminates the workload: SIGTERM to the process group, a bounded grace
// wait, then SIGKILL. Idempotent; the record always lands in StateStopped.
func (s *Supervisor) Stop(grace time.Duration) error {
	s.mu.Lock()
	if s.rec.State != StateRunning {
		s.rec.State = StateStopped
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	cmd := s.cmd
	wd := s.waitDone
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	if grace <= 0 {
		grace = 5 * time.Second
	}
	select {
	case <-wd:
	case <-time.After(grace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-wd:
		case <-time.After(200 * time.Millisecond):
			// best-effort; the monitor will still reap
		}
	}
	return nil
}

// Reset returns the record to NotStarted. Used when the configured script
// changes while nothing is running. No-op while Running.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	if s.rec.State != StateRunning {
		s.rec = Record{State: StateNotStarted}
	}
	s.mu.Unlock()
}

func (s *Supervisor) attachOutput(cmd *exec.Cmd, spec Spec) {
	name := "k6"
	if spec.RunID != "" {
		name = "k6-" + spec.RunID
	}
	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(name)
		s.mu.Lock()
		s.outCloser, s.errCloser = outW, errW
		s.mu.Unlock()
		if outW != nil {
			cmd.Stdout = outW
		} else {
			cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		if errW != nil {
			cmd.Stderr = errW
		} else {
			cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
		}
		return
	}
	null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	cmd.Stdout = null
	cmd.Stderr = null
}

func (s *Supervisor) closeWritersLocked() {
	if s.outCloser != nil {
		_ = s.outCloser.Close()
		s.outCloser = nil
	}
	if s.errCloser != nil {
		_ = s.errCloser.Close()
		s.errCloser = nil
	}
}
