package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validScript = `
export const options = { vus: 10, duration: "30s" };
export default function () {}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "k6ctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, ``)
	snap, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.UnitName != "k6/0" {
		t.Errorf("unit name: got %q", snap.UnitName)
	}
	if snap.ScriptsDir != "/etc/k6/scripts" {
		t.Errorf("scripts dir: got %q", snap.ScriptsDir)
	}
	if snap.K6Binary != "k6" {
		t.Errorf("binary: got %q", snap.K6Binary)
	}
	if snap.APIAddress != "localhost:6565" {
		t.Errorf("api address: got %q", snap.APIAddress)
	}
	if snap.StopGrace != 5*time.Second {
		t.Errorf("stop grace: got %v", snap.StopGrace)
	}
	if snap.ReconcileInterval != 30*time.Second {
		t.Errorf("reconcile interval: got %v", snap.ReconcileInterval)
	}
	if snap.HasScript() {
		t.Error("empty config should have no script")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
unit_name = "k6/3"
scripts_dir = "/tmp/scripts"
k6_binary = "/usr/local/bin/k6"
api_address = "localhost:7777"
stop_grace = "10s"
reconcile_interval = "1m"
environment = "TARGET=http://app:8080,RATE='5,000'"

load-test = '''
export const options = { vus: 25 };
export default function () {}
'''

[history]
backend = "sqlite"
dsn = "/tmp/k6.db"
`)
	snap, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.UnitName != "k6/3" {
		t.Errorf("unit name: got %q", snap.UnitName)
	}
	if !snap.HasScript() {
		t.Fatal("script not loaded")
	}
	if vus, ok := snap.VUs(); !ok || vus != 25 {
		t.Errorf("vus: got %d ok=%v", vus, ok)
	}
	if v, _ := snap.Environment.Lookup("RATE"); v != "5,000" {
		t.Errorf("quoted env value: got %q", v)
	}
	if snap.History == nil || snap.History.Backend != "sqlite" {
		t.Errorf("history: got %+v", snap.History)
	}
	if snap.StopGrace != 10*time.Second || snap.ReconcileInterval != time.Minute {
		t.Errorf("durations: grace=%v interval=%v", snap.StopGrace, snap.ReconcileInterval)
	}
}

func TestLoadInvalidScript(t *testing.T) {
	path := writeConfig(t, `
load-test = "import http from 'k6/http';"
`)
	_, err := NewLoader(path).Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestLoadDuplicateEnvKey(t *testing.T) {
	path := writeConfig(t, `
environment = "A=1,A=2"
`)
	_, err := NewLoader(path).Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	for _, body := range []string{
		`stop_grace = "soon"`,
		`reconcile_interval = "-5s"`,
	} {
		path := writeConfig(t, body)
		if _, err := NewLoader(path).Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: want ErrInvalidConfig, got %v", body, err)
		}
	}
}

func TestLoadUnknownHistoryBackend(t *testing.T) {
	path := writeConfig(t, `
[history]
backend = "mongodb"
`)
	_, err := NewLoader(path).Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.toml")).Load()
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadScriptFromFile(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "test.js")
	if err := os.WriteFile(scriptPath, []byte(validScript), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	path := writeConfig(t, `script_file = "`+scriptPath+`"`)
	snap, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !snap.HasScript() {
		t.Fatal("script file not loaded")
	}
	if vus, ok := snap.VUs(); !ok || vus != 10 {
		t.Fatalf("vus: got %d ok=%v", vus, ok)
	}
}

func TestLoadMissingScriptFile(t *testing.T) {
	path := writeConfig(t, `script_file = "/nonexistent/test.js"`)
	if _, err := NewLoader(path).Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestVUsAbsent(t *testing.T) {
	snap := Snapshot{Script: "export default function () {}"}
	if _, ok := snap.VUs(); ok {
		t.Fatal("VUs should be absent")
	}
}

func TestLoadReflectsFileChanges(t *testing.T) {
	path := writeConfig(t, ``)
	loader := NewLoader(path)
	snap, err := loader.Load()
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if snap.HasScript() {
		t.Fatal("unexpected script")
	}

	if err := os.WriteFile(path, []byte("load-test = '''"+validScript+"'''\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	snap, err = loader.Load()
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !snap.HasScript() {
		t.Fatal("script change not picked up")
	}
	if vus, ok := snap.VUs(); !ok || vus != 10 {
		t.Fatalf("vus: got %d ok=%v", vus, ok)
	}
}
