package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/groupchat/internal/config"
	"github.com/haasonsaas/groupchat/internal/metrics"
	"github.com/haasonsaas/groupchat/internal/session"
)

// Server is the websocket gateway's HTTP front door: one /ws handler per
// spec.md §4.7, plus /healthz and /metrics, matching the shape of the
// teacher's Server/startHTTPServer split (internal/gateway/http_server.go)
// without the channel/web-UI surface this system has no equivalent of.
type Server struct {
	team     *config.Team
	sessions *session.Manager
	build    session.Builder
	auth     *JWTAuth
	metrics  *metrics.Metrics
	logger   *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New returns a Server. build constructs a brand-new Session the first
// time a given session_id is seen; it is supplied by cmd/groupchat, which
// closes over the loaded team config to wire up containers, plugins, and
// the groupchat.Manager.
func New(team *config.Team, sessions *session.Manager, build session.Builder, auth *JWTAuth, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		team:     team,
		sessions: sessions,
		build:    build,
		auth:     auth,
		metrics:  m,
		logger:   logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) buildSession(ctx context.Context, id string) (*session.Session, error) {
	return s.build(ctx, id)
}

// Handler returns the gateway's http.Handler, mountable standalone or
// alongside other routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.serveConnection)
	return mux
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down gateway: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	response := map[string]any{
		"status":   "ok",
		"sessions": len(s.sessions.List()),
	}
	data, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
