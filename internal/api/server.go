package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"gasledger/internal/config"
	"gasledger/internal/metrics"
	"gasledger/internal/storage"
)

// Server exposes the read API over a transaction reader.
type Server struct {
	reader  storage.TransactionReader
	metrics *metrics.Metrics
	logger  zerolog.Logger
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer wires routes for lookups, stats, health and metrics.
func NewServer(cfg config.ServerConfig, reader storage.TransactionReader, m *metrics.Metrics, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		reader:  reader,
		metrics: m,
		logger:  logger.With().Str("component", "api").Logger(),
		mux:     mux,
	}

	s.route("GET /transactions/{hash}", s.handleTransaction)
	s.route("GET /stats", s.handleStats)
	s.route("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", m.Handler())

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("read api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) route(pattern string, handler http.HandlerFunc) {
	s.mux.Handle(pattern, s.instrument(pattern, handler))
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	txn, err := s.reader.Fetch(r.Context(), hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Detail: "Transaction not found"})
			return
		}
		s.logger.Error().Err(err).Str("hash", hash).Msg("fetch transaction failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reader.Stats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("compute stats failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, statusLabel(ww.status), elapsed.Seconds())
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("elapsed", elapsed).
			Msg("request served")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}
