// Package httpapi exposes the service HTTP surface: status, liveness,
// plain-text metrics and the push-mode webhook endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/inikonoff/Podogrev-bot/internal/procstat"
)

// Transport is the part of the transport adapter the HTTP surface
// needs: readiness and webhook hand-off.
type Transport interface {
	ShuttingDown() bool
	PushMode() bool
	HandleWebhook(ctx context.Context, raw []byte) error
}

// SessionCounter reports how many chat sessions exist.
type SessionCounter interface {
	Len() int
}

type Options struct {
	ServiceName string
	Addr        string
}

type Server struct {
	opts      Options
	transport Transport
	sessions  SessionCounter
	logger    *slog.Logger
	startedAt time.Time

	totalRequests atomic.Int64
	totalErrors   atomic.Int64

	srv *http.Server
}

func New(opts Options, transport Transport, sessions SessionCounter, logger *slog.Logger) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "podogrev-bot"
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:      opts,
		transport: transport,
		sessions:  sessions,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/webhook", s.handleWebhook)
	return s.countRequests(mux)
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// swallowed so a graceful Shutdown is not reported as a failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http_start", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// countRequests is the outer layer of every handler: it counts the
// request, recovers panics and counts them as errors without taking the
// process down.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.totalRequests.Add(1)
		defer func() {
			if rec := recover(); rec != nil {
				s.totalErrors.Add(1)
				s.logger.Error("handler_panic", "path", r.URL.Path, "panic", fmt.Sprint(rec))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "running",
		"service": s.opts.ServiceName,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.transport != nil && s.transport.ShuttingDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "Shutting down")
		return
	}
	_, _ = io.WriteString(w, "OK")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := procstat.Read()
	uptime := int64(time.Since(s.startedAt).Seconds())
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Len()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writeGauge(w, "bot_uptime", "Uptime in seconds", strconv.FormatInt(uptime, 10))
	writeGauge(w, "bot_ram_mb", "RAM usage MB", strconv.FormatFloat(snap.RAMMegabytes, 'f', 2, 64))
	writeGauge(w, "bot_cpu", "CPU usage percent", strconv.FormatFloat(snap.CPUPercent, 'f', 2, 64))
	writeGauge(w, "bot_requests_total", "Total HTTP requests", strconv.FormatInt(s.totalRequests.Load(), 10))
	writeGauge(w, "bot_errors_total", "Total errors", strconv.FormatInt(s.totalErrors.Load(), 10))
	writeGauge(w, "bot_history_entries", "Number of chat history entries", strconv.Itoa(sessions))
}

func writeGauge(w io.Writer, name, help, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", name, help, name, name, value)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.transport == nil || !s.transport.PushMode() {
		http.NotFound(w, r)
		return
	}
	if s.transport.ShuttingDown() {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Shutting down")
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.totalErrors.Add(1)
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.transport.HandleWebhook(r.Context(), raw); err != nil {
		s.totalErrors.Add(1)
		s.logger.Error("webhook_error", "error", err.Error())
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
