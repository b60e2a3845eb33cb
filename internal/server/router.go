// Package server exposes the supervisor over HTTP for out-of-process control.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/publr/sidekick/internal/logfile"
	"github.com/publr/sidekick/internal/metrics"
	"github.com/publr/sidekick/internal/supervisor"
)

// Router provides embeddable HTTP handlers for managing the sidecar.
// Endpoints:
//
//	POST   {basePath}/sidecar/start
//	POST   {basePath}/sidecar/stop
//	POST   {basePath}/sidecar/restart
//	GET    {basePath}/sidecar/status
//	GET    {basePath}/sidecar/logs?stream=stdout|stderr&lines=N
//	GET    {basePath}/sidecar/logfiles
//	DELETE {basePath}/sidecar/logs
//	GET    {basePath}/healthz
//	GET    {basePath}/metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
// Example basePath: "/api" results in /api/sidecar/start etc.
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/sidecar/start", r.handleStart)
	group.POST("/sidecar/stop", r.handleStop)
	group.POST("/sidecar/restart", r.handleRestart)
	group.GET("/sidecar/status", r.handleStatus)
	group.GET("/sidecar/logs", r.handleLogs)
	group.DELETE("/sidecar/logs", r.handleClearLogs)
	group.GET("/sidecar/logfiles", r.handleLogFiles)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router. The
// caller shuts it down via the returned http.Server.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type logsResp struct {
	Stream string   `json:"stream"`
	Lines  []string `json:"lines"`
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.sup.Start(); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.sup.Stop(); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	if err := r.sup.Restart(); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status())
}

func (r *Router) handleLogs(c *gin.Context) {
	stream, err := logfile.ParseStream(c.DefaultQuery("stream", string(logfile.Stdout)))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	lines := 100
	if q := c.Query("lines"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "lines must be a positive integer"})
			return
		}
		lines = n
	}
	out, err := r.sup.Logs(stream, lines)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, logsResp{Stream: string(stream), Lines: out})
}

func (r *Router) handleClearLogs(c *gin.Context) {
	if err := r.sup.ClearLogs(); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLogFiles(c *gin.Context) {
	files, err := r.sup.ListLogFiles()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, files)
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// statusFor maps supervisor error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case supervisor.IsKind(err, supervisor.KindAlreadyRunning),
		supervisor.IsKind(err, supervisor.KindNotRunning):
		return http.StatusConflict
	case supervisor.IsKind(err, supervisor.KindRestartLimitExceeded):
		return http.StatusTooManyRequests
	case supervisor.IsKind(err, supervisor.KindDirectoryNotFound):
		return http.StatusNotFound
	case supervisor.IsKind(err, supervisor.KindStartupTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
