// Package server exposes the HTTP API: job submission and listing, export
// download, batch verification, health and metrics.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"leadpipe/internal/core/ports"
	"leadpipe/internal/metrics"
	"leadpipe/internal/service"
)

// Server wires the handlers to the two engines and the store.
type Server struct {
	orch       *service.Orchestrator
	verifier   *service.Verifier
	store      ports.JobStore
	downloader ports.Downloader
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New builds a Server and its routing table.
func New(
	orch *service.Orchestrator,
	verifier *service.Verifier,
	store ports.JobStore,
	dl ports.Downloader,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		orch:       orch,
		verifier:   verifier,
		store:      store,
		downloader: dl,
		logger:     logger,
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/jobs", s.handleSubmit)
	s.mux.HandleFunc("GET /api/jobs", s.handleList)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGet)
	s.mux.HandleFunc("GET /api/jobs/{id}/download", s.handleDownload)
	s.mux.HandleFunc("POST /api/verify", s.handleVerify)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler with request logging and panic
// recovery around the routing table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panicked",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
			)
			writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Internal server error"})
		}
	}()

	s.mux.ServeHTTP(w, r)

	s.logger.Debug("request handled",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
