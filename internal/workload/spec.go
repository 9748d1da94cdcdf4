package workload

import (
	"os/exec"
	"strings"

	"github.com/loadops/k6ctl/internal/logger"
)

// Spec describes one k6 run to be supervised.
type Spec struct {
	RunID      string   // per-run identity, also used as the test_uuid tag
	Binary     string   // k6 binary path (default "k6")
	ScriptPath string   // materialized script file
	APIAddress string   // k6 REST API --address
	ExtraArgs  []string // output/tag arguments computed by reconciliation
	Env        []string // fully merged KEY=VALUE environment
	WorkDir    string
	Log        logger.Config
}

// BuildCommand constructs the k6 invocation. The script and the API address
// come first so log lines and `ps` output stay readable.
func (s *Spec) BuildCommand() *exec.Cmd {
	bin := strings.TrimSpace(s.Binary)
	if bin == "" {
		bin = "k6"
	}
	args := []string{"run", s.ScriptPath}
	if s.APIAddress != "" {
		args = append(args, "--address", s.APIAddress)
	}
	args = append(args, s.ExtraArgs...)
	// ok: intentional execution of the configured workload binary
	// #nosec G204
	return exec.Command(bin, args...)
}
