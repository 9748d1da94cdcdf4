package client

import "time"

// Result mirrors the action result envelope returned by the daemon.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UnitStatus mirrors the published unit status.
type UnitStatus struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

// WorkloadRecord mirrors the supervisor's process record.
type WorkloadRecord struct {
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

// StatusResponse is the daemon's GET /status payload.
type StatusResponse struct {
	Unit     UnitStatus     `json:"unit"`
	Workload WorkloadRecord `json:"workload"`
}

// Run mirrors one persisted run history entry.
type Run struct {
	ID        string    `json:"id"`
	Unit      string    `json:"unit"`
	Script    string    `json:"script"`
	VUs       int       `json:"vus"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}
