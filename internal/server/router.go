package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loadops/k6ctl/internal/action"
	"github.com/loadops/k6ctl/internal/history"
	"github.com/loadops/k6ctl/internal/reconcile"
	"github.com/loadops/k6ctl/internal/relation"
	"github.com/loadops/k6ctl/internal/workload"
)

// Router exposes the controller over HTTP.
// Endpoints under basePath:
//
//	POST   /actions/:name            dispatch start|stop|list
//	GET    /status                   unit status + process record
//	GET    /runs?limit=N             recent run history
//	POST   /relations/:name          body: {"remote_unit": "...", "url": "..."}
//	DELETE /relations/:name          query: remote_unit=...
//	PUT    /leader                   body: {"leader": true}
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	disp     *action.Dispatcher
	rec      *reconcile.Reconciler
	sup      *workload.Supervisor
	broker   *relation.Broker
	sink     history.Sink
	basePath string
}

func NewRouter(disp *action.Dispatcher, rec *reconcile.Reconciler, sup *workload.Supervisor, broker *relation.Broker, sink history.Sink, basePath string) *Router {
	return &Router{
		disp:     disp,
		rec:      rec,
		sup:      sup,
		broker:   broker,
		sink:     sink,
		basePath: sanitizeBase(basePath),
	}
}

// Handler returns an http.Handler powered by gin, mountable in any mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/actions/:name", r.handleAction)
	group.GET("/status", r.handleStatus)
	group.GET("/runs", r.handleRuns)
	group.POST("/relations/:name", r.handleRelationJoin)
	group.DELETE("/relations/:name", r.handleRelationDepart)
	group.PUT("/leader", r.handleLeader)
	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, okResp{OK: true}) })
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleAction(c *gin.Context) {
	name := c.Param("name")
	var args map[string]string
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	res := r.disp.Dispatch(c.Request.Context(), name, args)
	code := http.StatusOK
	if res.Status == action.StatusError {
		code = http.StatusBadRequest
	}
	writeJSON(c, code, res)
}

type statusResp struct {
	Unit     reconcile.UnitStatus `json:"unit"`
	Workload workload.Record      `json:"workload"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{
		Unit:     r.rec.Status(),
		Workload: r.sup.Status(),
	})
}

func (r *Router) handleRuns(c *gin.Context) {
	if r.sink == nil {
		writeJSON(c, http.StatusOK, []history.Run{})
		return
	}
	limit := parseLimit(c.Query("limit"), 20)
	runs, err := r.sink.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, runs)
}

type relationJoinReq struct {
	RemoteUnit string `json:"remote_unit"`
	URL        string `json:"url"`
}

func (r *Router) handleRelationJoin(c *gin.Context) {
	name := c.Param("name")
	var req relationJoinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.RemoteUnit == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "remote_unit required"})
		return
	}
	if err := r.broker.Join(name, req.RemoteUnit, req.URL); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, relation.ErrRelationLimit) {
			code = http.StatusConflict
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		// A rejected join still changes the surfaced status.
		r.rec.Poke(reconcile.TriggerRelation)
		return
	}
	r.rec.Poke(reconcile.TriggerRelation)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRelationDepart(c *gin.Context) {
	name := c.Param("name")
	remoteUnit := c.Query("remote_unit")
	if remoteUnit == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "remote_unit query param required"})
		return
	}
	r.broker.Depart(name, remoteUnit)
	r.rec.Poke(reconcile.TriggerRelation)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type leaderReq struct {
	Leader bool `json:"leader"`
}

func (r *Router) handleLeader(c *gin.Context) {
	var req leaderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	r.broker.SetLeader(req.Leader)
	r.rec.Poke(reconcile.TriggerLeadership)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
