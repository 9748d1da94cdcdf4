package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/loadops/k6ctl/internal/config"
	"github.com/loadops/k6ctl/internal/env"
	"github.com/loadops/k6ctl/internal/relation"
)

// desired is the computed target state for the workload: the merged
// environment, the output arguments derived from relations, and a fingerprint
// used to detect drift while Running.
type desired struct {
	scriptPath  string
	env         []string
	args        []string
	fingerprint string
}

// desiredState merges relation-supplied endpoints with the explicit config
// environment. Relation values are applied first, so an explicit KEY=VALUE in
// config always wins for the same key, regardless of merge order elsewhere.
func desiredState(snap config.Snapshot, view relation.View, scriptPath string) desired {
	var rel env.List
	if view.RemoteWriteURL != "" {
		rel = append(rel, env.Pair{Key: "K6_PROMETHEUS_RW_SERVER_URL", Value: view.RemoteWriteURL})
	}
	if view.LogURL != "" {
		rel = append(rel, env.Pair{Key: "K6_LOKI_PUSH_URL", Value: view.LogURL})
	}
	merged := env.New().Merge(rel, snap.Environment)

	var args []string
	if view.RemoteWriteURL != "" {
		args = append(args, "-o", "experimental-prometheus-rw")
	}
	if view.LogURL != "" {
		args = append(args, "--log-output", "loki="+view.LogURL)
	}

	h := sha256.New()
	_, _ = io.WriteString(h, snap.Script)
	for _, kv := range merged {
		_, _ = io.WriteString(h, "\x00"+kv)
	}
	for _, a := range args {
		_, _ = io.WriteString(h, "\x01"+a)
	}

	return desired{
		scriptPath:  scriptPath,
		env:         merged,
		args:        args,
		fingerprint: hex.EncodeToString(h.Sum(nil)),
	}
}
