// Package health serves the HTTP surface of the bot: liveness, readiness, a
// start trigger for sleeping hosts, diagnostics and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/brensch/attendance/attendance"
	"github.com/brensch/attendance/log"
	"github.com/brensch/attendance/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

// StartResponse is the body of GET /start.
type StartResponse struct {
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	User         string    `json:"user,omitempty"`
	Guilds       int       `json:"guilds"`
	Uptime       string    `json:"uptime,omitempty"`
	LastActivity time.Time `json:"last_activity,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Server provides the HTTP endpoints.
type Server struct {
	version   string
	startTime time.Time
	bot       attendance.StatusProvider
	probe     attendance.WebhookProbe
	recent    *log.Recent
	metrics   *metrics.Manager
	settings  Settings
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithProbe enables the webhook probe of /diagnostics?probe=1.
func WithProbe(p attendance.WebhookProbe) Option {
	return func(s *Server) { s.probe = p }
}

// WithRecentLogs includes the latest log records in /diagnostics.
func WithRecentLogs(r *log.Recent) Option {
	return func(s *Server) { s.recent = r }
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) { s.metrics = m }
}

// WithSettings reports the configuration in /diagnostics.
func WithSettings(settings Settings) Option {
	return func(s *Server) { s.settings = settings }
}

// NewServer creates the HTTP surface around bot.
func NewServer(version string, bot attendance.StatusProvider, opts ...Option) *Server {
	s := &Server{
		version:   version,
		startTime: time.Now(),
		bot:       bot,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings.Location == nil {
		s.settings.Location = time.UTC
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)
	r.Get("/ready", s.Ready)
	r.Get("/start", s.Start)
	r.Get("/diagnostics", s.Diagnostics)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return r
}

// Health returns the liveness of the process.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: s.now(),
		Version:   s.version,
		Uptime:    s.now().Sub(s.startTime).Round(time.Second).String(),
	})
}

// Ready reports whether the gateway is connected.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	if !s.bot.Status().Connected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Start connects the gateway if it is down. Hosts that idle the process call it to wake the bot.
func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	started, err := s.bot.EnsureConnected(r.Context())
	if err != nil {
		slog.Error("start request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, StartResponse{
			Status:    "Error",
			Message:   "Failed to start bot",
			Error:     err.Error(),
			Timestamp: s.now(),
		})
		return
	}

	st := s.bot.Status()
	resp := StartResponse{
		Status:       "Bot already running",
		User:         st.User,
		Guilds:       st.Guilds,
		Uptime:       st.Uptime.Round(time.Second).String(),
		LastActivity: st.LastActivity,
		Timestamp:    s.now(),
	}
	if started {
		resp.Status = "Bot started successfully"
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListenAndServe serves Routes on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
