// Copyright (C) 2025 Skills Fabric Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package obsv

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/skillsfabric/core/internal/logx"
)

// progressEvent is what WSReporter broadcasts to connected clients —
// the same (stage, step, total) tuple LogReporter writes to logx, just
// over a socket instead of a log line.
type progressEvent struct {
	Stage string `json:"stage"`
	Step  int    `json:"step"`
	Total int    `json:"total"`
	At    string `json:"at"`
}

// WSReporter implements ProgressReporter by fanning workflow progress
// out to every connected websocket client, for an external dashboard
// watching a `generate` run. The CLI's own terminal progress view
// (cmd/skillsfabric/progress.go) is a separate reporter.
type WSReporter struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *logx.Logger
}

// NewWSReporter constructs an empty hub.
func NewWSReporter(logger *logx.Logger) *WSReporter {
	if logger == nil {
		logger = logx.Default()
	}
	return &WSReporter{clients: make(map[*websocket.Conn]struct{}), logger: logger}
}

// Report implements ProgressReporter.
func (r *WSReporter) Report(stage string, step, total int) {
	event := progressEvent{Stage: stage, Step: step, Total: total, At: time.Now().UTC().Format(time.RFC3339)}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(r.clients, conn)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The progress stream is a read-only broadcast consumed by an
	// operator's own dashboard, not a browser page this service
	// serves itself, so the origin check is intentionally permissive.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (r *WSReporter) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	r.mu.Lock()
	r.clients[conn] = struct{}{}
	r.mu.Unlock()

	// Drain and discard client frames until the socket closes; this
	// endpoint only pushes, but a live connection must still read to
	// notice a client-initiated close or error.
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.clients, conn)
			r.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Server exposes /healthz, /metrics, and /ws/progress over HTTP so an
// operator dashboard can watch a pipeline run without scraping logx
// output. Entirely optional: cmd/skillsfabric only starts one when
// SKILLS_FABRIC_OBSERVABILITY_ADDR is set.
type Server struct {
	engine  *gin.Engine
	ws      *WSReporter
	httpSrv *http.Server
}

// NewServer wires the given Metrics' registry and a fresh WSReporter
// into a gin.Engine in release mode (this is a sidecar, not the CLI's
// primary surface, so gin's default debug-mode request logging would
// just be noise against logx's own structured output).
func NewServer(m *Metrics, logger *logx.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("skillsfabric-obsv"))

	ws := NewWSReporter(logger)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	engine.GET("/ws/progress", ws.handleWS)

	return &Server{engine: engine, ws: ws}
}

// Reporter returns the ProgressReporter the workflow supervisor should
// be given so its stage progress reaches connected dashboards.
func (s *Server) Reporter() ProgressReporter { return s.ws }

// Serve blocks, listening on addr, until the process is killed or
// Shutdown is called from another goroutine.
func (s *Server) Serve(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
