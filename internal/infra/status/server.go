package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jarvis/internal/application"
)

type Provider interface {
	Status() application.Status
}

// Server exposes the assistant's health and the Prometheus registry over HTTP.
type Server struct {
	addr     string
	server   *http.Server
	provider Provider
	logger   *slog.Logger
	mux      *http.ServeMux

	mu      sync.Mutex
	running bool
}

type health struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	State      string `json:"state"`
	Turns      int64  `json:"turns"`
	HistoryLen int    `json:"history_len"`
}

func NewServer(addr string, provider Provider, logger *slog.Logger) *Server {
	s := &Server{
		addr:     addr,
		provider: provider,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	s.mu.Lock()
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.running = true
	srv := s.server
	s.mu.Unlock()

	go func() {
		s.logger.Info("status server starting", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.setStopped()
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Stop()
}

func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	running := s.running
	s.mu.Unlock()

	if !running || srv == nil {
		return nil
	}
	defer s.setStopped()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := srv.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.provider.Status()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health{
		Status:     "ok",
		Source:     st.Source,
		State:      st.State.String(),
		Turns:      st.Turns,
		HistoryLen: st.HistoryLen,
	}); err != nil {
		s.logger.Warn("writing health response", "error", err)
	}
}
