package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"  WARN ": slog.LevelWarn,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (Config{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestColorHandlerTagsLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newColorHandler(&buf, nil, true))
	log.Warn("stop grace exceeded")
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("warn tag not colorized: %q", out)
	}
	if !strings.Contains(out, "stop grace exceeded") {
		t.Fatalf("message lost: %q", out)
	}
}

func TestColorHandlerPlain(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newColorHandler(&buf, nil, false))
	log.Error("launch failed")
	out := buf.String()
	if strings.Contains(out, "\033[") {
		t.Fatalf("unexpected ANSI codes: %q", out)
	}
	if !strings.Contains(out, "ERROR  launch failed") {
		t.Fatalf("level tag missing: %q", out)
	}
}

func TestColorHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newColorHandler(&buf, nil, false)).With("run_id", "abc")
	log.Info("workload started")
	out := buf.String()
	if !strings.Contains(out, "run_id=abc") {
		t.Fatalf("attr lost through With: %q", out)
	}
	if !strings.Contains(out, "INFO  workload started") {
		t.Fatalf("level tag missing after With: %q", out)
	}
}

func TestColorHandlerRespectsLevel(t *testing.T) {
	h := newColorHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}, true)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error disabled at warn level")
	}
}

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("k6-run1")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatal("writers not created")
	}
	if _, err := outW.Write([]byte("out line\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("err line\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	_ = outW.Close()
	_ = errW.Close()

	b, err := os.ReadFile(filepath.Join(dir, "k6-run1.stdout.log"))
	if err != nil || len(b) == 0 {
		t.Fatalf("stdout log: %v (%d bytes)", err, len(b))
	}
	b, err = os.ReadFile(filepath.Join(dir, "k6-run1.stderr.log"))
	if err != nil || len(b) == 0 {
		t.Fatalf("stderr log: %v (%d bytes)", err, len(b))
	}
}

func TestWritersExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	c := Config{StdoutPath: filepath.Join(dir, "custom.out")}
	outW, errW, err := c.Writers("ignored")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW == nil {
		t.Fatal("stdout writer missing")
	}
	if errW != nil {
		t.Fatal("stderr writer should be absent without a destination")
	}
	_, _ = outW.Write([]byte("x"))
	_ = outW.Close()
	if _, err := os.Stat(filepath.Join(dir, "custom.out")); err != nil {
		t.Fatalf("custom path not used: %v", err)
	}
}

func TestWritersDisabled(t *testing.T) {
	outW, errW, err := Config{}.Writers("k6")
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatal("writers created without any destination")
	}
}
