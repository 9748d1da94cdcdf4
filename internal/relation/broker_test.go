package relation

import (
	"errors"
	"testing"
)

func TestJoinAndView(t *testing.T) {
	b := NewBroker()
	if err := b.Join(RemoteWrite, "prometheus/0", "http://prom:9090/api/v1/write"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := b.Join(Logging, "loki/0", "http://loki:3100/loki/api/v1/push"); err != nil {
		t.Fatalf("join: %v", err)
	}
	v := b.View()
	if v.RemoteWriteURL != "http://prom:9090/api/v1/write" {
		t.Errorf("remote write url: %q", v.RemoteWriteURL)
	}
	if v.LogURL != "http://loki:3100/loki/api/v1/push" {
		t.Errorf("log url: %q", v.LogURL)
	}
	if v.Conflict != "" {
		t.Errorf("unexpected conflict: %q", v.Conflict)
	}
}

func TestJoinSecondUnitRejected(t *testing.T) {
	b := NewBroker()
	if err := b.Join(RemoteWrite, "prometheus/0", "http://one"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	err := b.Join(RemoteWrite, "prometheus/1", "http://two")
	if !errors.Is(err, ErrRelationLimit) {
		t.Fatalf("want ErrRelationLimit, got %v", err)
	}
	// First joiner stays active and the conflict is surfaced.
	v := b.View()
	if v.RemoteWriteURL != "http://one" {
		t.Errorf("first joiner displaced: %q", v.RemoteWriteURL)
	}
	if v.Conflict != RemoteWrite {
		t.Errorf("conflict not surfaced: %q", v.Conflict)
	}
}

func TestConflictClearsOnDepart(t *testing.T) {
	b := NewBroker()
	_ = b.Join(Logging, "loki/0", "http://one")
	_ = b.Join(Logging, "loki/1", "http://two")
	if v := b.View(); v.Conflict != Logging {
		t.Fatalf("conflict expected, got %q", v.Conflict)
	}
	b.Depart(Logging, "loki/1")
	v := b.View()
	if v.Conflict != "" {
		t.Errorf("conflict not cleared: %q", v.Conflict)
	}
	if v.LogURL != "http://one" {
		t.Errorf("active unit lost: %q", v.LogURL)
	}
}

func TestRejoinSameUnitUpdatesURL(t *testing.T) {
	b := NewBroker()
	_ = b.Join(RemoteWrite, "prometheus/0", "http://old")
	if err := b.Join(RemoteWrite, "prometheus/0", "http://new"); err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if v := b.View(); v.RemoteWriteURL != "http://new" {
		t.Errorf("url not updated: %q", v.RemoteWriteURL)
	}
}

func TestDepartActiveUnitClearsEndpoint(t *testing.T) {
	b := NewBroker()
	_ = b.Join(RemoteWrite, "prometheus/0", "http://one")
	b.Depart(RemoteWrite, "prometheus/0")
	if v := b.View(); v.RemoteWriteURL != "" {
		t.Errorf("endpoint not cleared: %q", v.RemoteWriteURL)
	}
	// Departing again is a no-op.
	b.Depart(RemoteWrite, "prometheus/0")
}

func TestJoinUnknownRelation(t *testing.T) {
	b := NewBroker()
	if err := b.Join("database", "db/0", "postgres://"); !errors.Is(err, ErrUnknownRelation) {
		t.Fatalf("want ErrUnknownRelation, got %v", err)
	}
}

func TestLeadership(t *testing.T) {
	b := NewBroker()
	if b.View().Leader {
		t.Fatal("new broker should not be leader")
	}
	b.SetLeader(true)
	if !b.View().Leader {
		t.Fatal("leadership not recorded")
	}
	b.SetLeader(false)
	if b.View().Leader {
		t.Fatal("leadership not revoked")
	}
}
