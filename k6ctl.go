package k6ctl

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loadops/k6ctl/internal/action"
	cfg "github.com/loadops/k6ctl/internal/config"
	"github.com/loadops/k6ctl/internal/history"
	"github.com/loadops/k6ctl/internal/history/factory"
	"github.com/loadops/k6ctl/internal/metrics"
	"github.com/loadops/k6ctl/internal/reconcile"
	"github.com/loadops/k6ctl/internal/relation"
	iapi "github.com/loadops/k6ctl/internal/server"
	"github.com/loadops/k6ctl/internal/workload"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Snapshot = cfg.Snapshot

type Record = workload.Record

type Result = action.Result

type UnitStatus = reconcile.UnitStatus

type HistorySink = history.Sink

// Relation endpoint names consumed by the controller.
const (
	RelationRemoteWrite = relation.RemoteWrite
	RelationLogging     = relation.Logging
)

// Controller is a thin facade wiring the config loader, relation broker,
// process supervisor, reconcile loop and action dispatcher together.
// It provides a stable public API for embedding.
type Controller struct {
	loader *cfg.Loader
	broker *relation.Broker
	sup    *workload.Supervisor
	rec    *reconcile.Reconciler
	disp   *action.Dispatcher
	sink   history.Sink
	log    *slog.Logger
}

// New builds a controller from the given config file. The file is validated
// once up front; later reconciliations re-read it per pass.
func New(configPath string) (*Controller, error) {
	loader := cfg.NewLoader(configPath)
	snap, err := loader.Load()
	if err != nil {
		return nil, err
	}
	log := snap.Log.New()
	sink, err := factory.New(snap.History)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		if err := sink.EnsureSchema(context.Background()); err != nil {
			_ = sink.Close()
			return nil, err
		}
	}
	broker := relation.NewBroker()
	sup := workload.NewSupervisor()
	rec := reconcile.New(loader, broker, sup,
		reconcile.WithHistory(sink),
		reconcile.WithLogger(log),
	)
	return &Controller{
		loader: loader,
		broker: broker,
		sup:    sup,
		rec:    rec,
		disp:   action.NewDispatcher(loader, broker, rec, sup, sink),
		sink:   sink,
		log:    log,
	}, nil
}

// Run drives the reconcile loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) { c.rec.Run(ctx) }

// Dispatch routes a direct user command (start, stop, list).
func (c *Controller) Dispatch(ctx context.Context, name string, args map[string]string) Result {
	return c.disp.Dispatch(ctx, name, args)
}

// Status returns the published unit status and the process record.
func (c *Controller) Status() (UnitStatus, Record) {
	return c.rec.Status(), c.sup.Status()
}

// SetLeader feeds the leadership signal from the embedding platform.
func (c *Controller) SetLeader(leader bool) {
	c.broker.SetLeader(leader)
	c.rec.Poke(reconcile.TriggerLeadership)
}

// JoinRelation records a remote unit populating a relation endpoint.
func (c *Controller) JoinRelation(relationName, remoteUnit, url string) error {
	err := c.broker.Join(relationName, remoteUnit, url)
	c.rec.Poke(reconcile.TriggerRelation)
	return err
}

// DepartRelation removes a remote unit from a relation endpoint.
func (c *Controller) DepartRelation(relationName, remoteUnit string) {
	c.broker.Depart(relationName, remoteUnit)
	c.rec.Poke(reconcile.TriggerRelation)
}

// Poke enqueues a config-change reconciliation (e.g. after rewriting the
// config file).
func (c *Controller) Poke() { c.rec.Poke(reconcile.TriggerConfig) }

// Handler returns the HTTP API handler for mounting in any mux.
func (c *Controller) Handler(basePath string) http.Handler {
	return iapi.NewRouter(c.disp, c.rec, c.sup, c.broker, c.sink, basePath).Handler()
}

// NewHTTPServer starts the HTTP API on addr.
func (c *Controller) NewHTTPServer(addr, basePath string) *http.Server {
	return iapi.NewServer(addr, iapi.NewRouter(c.disp, c.rec, c.sup, c.broker, c.sink, basePath))
}

// Close releases the history backend, if any.
func (c *Controller) Close() error {
	if c.sink != nil {
		return c.sink.Close()
	}
	return nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
