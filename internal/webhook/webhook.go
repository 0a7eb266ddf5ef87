package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostsync/hostsyncd/internal/config"
	"github.com/hostsync/hostsyncd/internal/deploy"
)

// PushEvent represents the relevant fields from a git hosting push webhook
type PushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// RunFunc executes one apply run. The server treats an error wrapping
// deploy.ErrRolledBack as a compensated failure; the server keeps serving
// either way.
type RunFunc func(ctx context.Context) error

// Server accepts signed push webhooks and triggers apply runs
type Server struct {
	cfg        *config.Config
	run        RunFunc
	logger     *slog.Logger
	secret     []byte
	runMu      sync.Mutex // guards runActive and runPending
	runActive  bool       // whether a run is currently in progress
	runPending bool       // whether another run is needed after the current one
	debounce   *debouncer
}

// debouncer coalesces bursts of webhook events into a single run
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// NewServer creates a new webhook server
func NewServer(cfg *config.Config, run RunFunc, logger *slog.Logger) (*Server, error) {
	// Load webhook secret from file
	secret, err := os.ReadFile(cfg.Serve.WebhookSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}
	secret = []byte(strings.TrimSpace(string(secret)))

	s := &Server{
		cfg:    cfg,
		run:    run,
		logger: logger,
		secret: secret,
	}
	s.debounce = &debouncer{
		delay: 2 * time.Second,
	}

	return s, nil
}

// Start runs the webhook HTTP server on the given listener, performing an
// initial apply run first. A nil listener binds the configured address.
func (s *Server) Start(ctx context.Context, listener net.Listener) error {
	s.logger.Info("performing initial run before starting webhook server")
	s.performRun(ctx)

	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", s.cfg.Serve.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.Serve.ListenAddr, err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebhook)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server starting", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleWebhook handles incoming push webhook requests
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		webhooksReceived.WithLabelValues(statusRejected).Inc()
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if contentType := r.Header.Get("Content-Type"); contentType != "application/json" {
		s.logger.Warn("rejecting request with invalid content type", "content_type", contentType)
		webhooksReceived.WithLabelValues(statusRejected).Inc()
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		webhooksReceived.WithLabelValues(statusMalformed).Inc()
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("X-Hub-Signature-256")
	if !s.verifySignature(body, signature) {
		s.logger.Warn("rejecting request with invalid signature")
		webhooksReceived.WithLabelValues(statusRejected).Inc()
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	s.logger.Info("received webhook", "event", eventType)

	if !s.isEventTypeAllowed(eventType) {
		s.logger.Info("ignoring disallowed event type", "event", eventType)
		webhooksReceived.WithLabelValues(statusIgnored).Inc()
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Event type not configured for deployment\n")
		return
	}

	var event PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse webhook payload", "error", err)
		webhooksReceived.WithLabelValues(statusMalformed).Inc()
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !s.isRefAllowed(event.Ref) {
		s.logger.Info("ignoring disallowed ref", "ref", event.Ref)
		webhooksReceived.WithLabelValues(statusIgnored).Inc()
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Ref not configured for deployment\n")
		return
	}

	s.logger.Info("webhook accepted",
		"event", eventType,
		"ref", event.Ref,
		"commit", event.After,
		"repo", event.Repository.FullName)
	webhooksReceived.WithLabelValues(statusAccepted).Inc()

	// Trigger debounced run
	s.debounce.trigger(func() {
		s.performRun(context.Background())
	})

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Run triggered\n")
}

// verifySignature verifies the HMAC-SHA256 webhook signature
func (s *Server) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	// Signature format: sha256=<hex>
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expected))
}

// isEventTypeAllowed checks if the event type is in the allowed list
func (s *Server) isEventTypeAllowed(eventType string) bool {
	if len(s.cfg.Serve.AllowedEventTypes) == 0 {
		return true // no filter configured
	}
	for _, allowed := range s.cfg.Serve.AllowedEventTypes {
		if eventType == allowed {
			return true
		}
	}
	return false
}

// isRefAllowed checks if the ref is in the allowed list
func (s *Server) isRefAllowed(ref string) bool {
	if len(s.cfg.Serve.AllowedRefs) == 0 {
		return true // no filter configured
	}
	for _, allowed := range s.cfg.Serve.AllowedRefs {
		if ref == allowed {
			return true
		}
	}
	return false
}

// performRun executes an apply run with single-flight semantics. If a run is
// already in progress, at most one additional run is queued; further
// concurrent requests are dropped to avoid unbounded pile-up. A rolled-back
// run is counted and logged but does not stop the server.
func (s *Server) performRun(ctx context.Context) {
	s.runMu.Lock()
	if s.runActive {
		s.runPending = true
		s.runMu.Unlock()
		s.logger.Info("run already in progress, queuing pending re-run")
		return
	}
	s.runActive = true
	s.runMu.Unlock()

	for {
		s.logger.Info("performing apply run")

		switch err := s.run(ctx); {
		case err == nil:
			s.logger.Info("run completed successfully")
			runsTotal.WithLabelValues(outcomeCompleted).Inc()
		case errors.Is(err, deploy.ErrRolledBack):
			s.logger.Error("run failed and was rolled back", "error", err)
			runsTotal.WithLabelValues(outcomeRolledBack).Inc()
			rollbacksTotal.Inc()
		default:
			s.logger.Error("run failed", "error", err)
			runsTotal.WithLabelValues(outcomeFailed).Inc()
		}

		// Atomically check whether another run was requested while we were
		// busy. If not, release the slot and stop; if yes, clear the flag
		// and loop to service that one pending request.
		s.runMu.Lock()
		if !s.runPending {
			s.runActive = false
			s.runMu.Unlock()
			break
		}
		s.runPending = false
		s.runMu.Unlock()

		s.logger.Info("re-running due to pending request")
	}
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}
