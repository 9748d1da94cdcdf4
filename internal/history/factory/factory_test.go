package factory

import (
	"testing"

	"github.com/loadops/k6ctl/internal/config"
)

func TestNilConfigDisablesHistory(t *testing.T) {
	sink, err := New(nil)
	if err != nil || sink != nil {
		t.Fatalf("got sink=%v err=%v", sink, err)
	}
	sink, err = New(&config.History{})
	if err != nil || sink != nil {
		t.Fatalf("empty backend: got sink=%v err=%v", sink, err)
	}
}

func TestSQLiteBackend(t *testing.T) {
	sink, err := New(&config.History{Backend: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sink == nil {
		t.Fatal("nil sink")
	}
	_ = sink.Close()
}

func TestUnknownBackend(t *testing.T) {
	if _, err := New(&config.History{Backend: "redis"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
