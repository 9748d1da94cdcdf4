package reconcile

import (
	"strings"
	"testing"

	"github.com/loadops/k6ctl/internal/config"
	"github.com/loadops/k6ctl/internal/env"
	"github.com/loadops/k6ctl/internal/relation"
)

func lookupEnv(kvs []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range kvs {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

func TestDesiredStateRelationEnv(t *testing.T) {
	snap := config.Snapshot{Script: "export default function () {}"}
	view := relation.View{
		RemoteWriteURL: "http://prom:9090/api/v1/write",
		LogURL:         "http://loki:3100/loki/api/v1/push",
	}
	des := desiredState(snap, view, "/tmp/s.js")

	if v, ok := lookupEnv(des.env, "K6_PROMETHEUS_RW_SERVER_URL"); !ok || v != view.RemoteWriteURL {
		t.Errorf("remote write env: %q ok=%v", v, ok)
	}
	if v, ok := lookupEnv(des.env, "K6_LOKI_PUSH_URL"); !ok || v != view.LogURL {
		t.Errorf("loki env: %q ok=%v", v, ok)
	}

	args := strings.Join(des.args, " ")
	if !strings.Contains(args, "-o experimental-prometheus-rw") {
		t.Errorf("missing prometheus output arg: %q", args)
	}
	if !strings.Contains(args, "--log-output loki="+view.LogURL) {
		t.Errorf("missing loki output arg: %q", args)
	}
}

func TestDesiredStateExplicitEnvWins(t *testing.T) {
	snap := config.Snapshot{
		Script:      "export default function () {}",
		Environment: env.List{{Key: "K6_PROMETHEUS_RW_SERVER_URL", Value: "http://operator-override"}},
	}
	view := relation.View{RemoteWriteURL: "http://relation-supplied"}
	des := desiredState(snap, view, "/tmp/s.js")
	if v, _ := lookupEnv(des.env, "K6_PROMETHEUS_RW_SERVER_URL"); v != "http://operator-override" {
		t.Fatalf("explicit config did not win: %q", v)
	}
}

func TestDesiredStateNoRelations(t *testing.T) {
	des := desiredState(config.Snapshot{Script: "export default function () {}"}, relation.View{}, "/tmp/s.js")
	if len(des.args) != 0 {
		t.Errorf("args without relations: %v", des.args)
	}
	if _, ok := lookupEnv(des.env, "K6_PROMETHEUS_RW_SERVER_URL"); ok {
		t.Error("relation env injected without a relation")
	}
}

func TestFingerprintTracksInputs(t *testing.T) {
	base := config.Snapshot{Script: "export default function () {}"}
	view := relation.View{}

	a := desiredState(base, view, "/tmp/s.js")
	b := desiredState(base, view, "/tmp/s.js")
	if a.fingerprint != b.fingerprint {
		t.Fatal("fingerprint not deterministic")
	}

	changedScript := base
	changedScript.Script = "export default function () { /* v2 */ }"
	if c := desiredState(changedScript, view, "/tmp/s.js"); c.fingerprint == a.fingerprint {
		t.Error("script change not reflected in fingerprint")
	}

	changedEnv := base
	changedEnv.Environment = env.List{{Key: "TARGET", Value: "http://app"}}
	if c := desiredState(changedEnv, view, "/tmp/s.js"); c.fingerprint == a.fingerprint {
		t.Error("env change not reflected in fingerprint")
	}

	changedView := view
	changedView.RemoteWriteURL = "http://prom"
	if c := desiredState(base, changedView, "/tmp/s.js"); c.fingerprint == a.fingerprint {
		t.Error("relation change not reflected in fingerprint")
	}
}
