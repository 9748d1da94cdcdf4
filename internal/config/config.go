package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loadops/k6ctl/internal/env"
	"github.com/loadops/k6ctl/internal/logger"
)

// ErrInvalidConfig marks configuration that parsed but failed validation.
// The reconcile loop surfaces it as a blocked unit status rather than a crash.
var ErrInvalidConfig = errors.New("invalid config")

// Server configures the controller's HTTP API.
type Server struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// History configures the run-history backend.
// Backend is one of: sqlite, postgres, clickhouse.
type History struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// Snapshot is the immutable configuration view used by one reconciliation
// pass. Build it with Loader.Load; do not mutate after.
type Snapshot struct {
	UnitName    string
	Script      string   // inline k6 script body (the `load-test` option)
	Environment env.List // parsed `environment` option, order preserved

	ScriptsDir        string
	K6Binary          string
	APIAddress        string // k6 REST API --address
	StopGrace         time.Duration
	ReconcileInterval time.Duration

	Server  *Server
	Metrics *Metrics
	History *History
	Log     logger.Config
}

// HasScript reports whether a load-test script is configured.
func (s Snapshot) HasScript() bool { return strings.TrimSpace(s.Script) != "" }

var vusRe = regexp.MustCompile(`vus:\s*(\d+)`)

// VUs extracts the declared virtual-user count from the script options block.
// Absence is not an error; a single-unit controller does not shard VUs.
func (s Snapshot) VUs() (int, bool) {
	m := vusRe.FindStringSubmatch(s.Script)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

type fileConfig struct {
	UnitName          string        `mapstructure:"unit_name"`
	LoadTest          string        `mapstructure:"load-test"`
	ScriptFile        string        `mapstructure:"script_file"`
	Environment       string        `mapstructure:"environment"`
	ScriptsDir        string        `mapstructure:"scripts_dir"`
	K6Binary          string        `mapstructure:"k6_binary"`
	APIAddress        string        `mapstructure:"api_address"`
	StopGrace         string        `mapstructure:"stop_grace"`
	ReconcileInterval string        `mapstructure:"reconcile_interval"`
	Server            *Server       `mapstructure:"server"`
	Metrics           *Metrics      `mapstructure:"metrics"`
	History           *History      `mapstructure:"history"`
	Log               logger.Config `mapstructure:"log"`
}

// Loader re-reads the configuration file on every Load call so each
// reconciliation sees a fresh, consistent snapshot.
type Loader struct {
	Path string
}

func NewLoader(path string) *Loader { return &Loader{Path: path} }

// Load parses and validates the configuration file.
func (l *Loader) Load() (Snapshot, error) {
	v := viper.New()
	v.SetConfigFile(l.Path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Snapshot{}, fmt.Errorf("read config %s: %w", l.Path, err)
	}
	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Snapshot{}, fmt.Errorf("parse config %s: %w", l.Path, err)
	}
	// script_file is an alternative to the inline body; inline wins when both
	// are set.
	if fc.LoadTest == "" && fc.ScriptFile != "" {
		b, err := os.ReadFile(fc.ScriptFile)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: script_file: %v", ErrInvalidConfig, err)
		}
		fc.LoadTest = string(b)
	}
	return buildSnapshot(fc)
}

func buildSnapshot(fc fileConfig) (Snapshot, error) {
	snap := Snapshot{
		UnitName:   strOr(fc.UnitName, "k6/0"),
		Script:     fc.LoadTest,
		ScriptsDir: strOr(fc.ScriptsDir, "/etc/k6/scripts"),
		K6Binary:   strOr(fc.K6Binary, "k6"),
		APIAddress: strOr(fc.APIAddress, "localhost:6565"),
		Server:     fc.Server,
		Metrics:    fc.Metrics,
		History:    fc.History,
		Log:        fc.Log,
	}
	var err error
	if snap.StopGrace, err = durOr(fc.StopGrace, 5*time.Second); err != nil {
		return Snapshot{}, fmt.Errorf("%w: stop_grace: %v", ErrInvalidConfig, err)
	}
	if snap.ReconcileInterval, err = durOr(fc.ReconcileInterval, 30*time.Second); err != nil {
		return Snapshot{}, fmt.Errorf("%w: reconcile_interval: %v", ErrInvalidConfig, err)
	}
	if err := validateScript(fc.LoadTest); err != nil {
		return Snapshot{}, err
	}
	snap.Environment, err = env.ParseList(fc.Environment)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}
	if fc.History != nil {
		switch fc.History.Backend {
		case "", "sqlite", "postgres", "clickhouse":
		default:
			return Snapshot{}, fmt.Errorf("%w: history backend %q is not supported", ErrInvalidConfig, fc.History.Backend)
		}
	}
	return snap, nil
}

// validateScript rejects a configured script that cannot plausibly be a k6
// test: k6 requires a default exported function as the entrypoint.
func validateScript(script string) error {
	if script == "" {
		return nil
	}
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return fmt.Errorf("%w: load-test script is blank", ErrInvalidConfig)
	}
	if !strings.Contains(trimmed, "export default") {
		return fmt.Errorf("%w: load-test script has no default export", ErrInvalidConfig)
	}
	return nil
}

func strOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func durOr(v string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}
