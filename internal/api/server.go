package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/FastCab/internal/flow"
	"github.com/BTreeMap/FastCab/internal/messaging"
	"github.com/BTreeMap/FastCab/internal/metrics"
	"github.com/BTreeMap/FastCab/internal/ratelimit"
	"github.com/BTreeMap/FastCab/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server timeouts
const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// ServerDeps holds the components the HTTP server routes requests to.
type ServerDeps struct {
	Engine           *flow.Engine
	Store            store.Store
	Limiter          ratelimit.Limiter // nil disables rate limiting
	Transport        string
	TwilioConfigured bool
}

// Server exposes the Twilio webhook, health and metrics endpoints.
type Server struct {
	engine           *flow.Engine
	st               store.Store
	limiter          ratelimit.Limiter
	transport        string
	twilioConfigured bool
	now              func() time.Time
}

// NewServer creates a Server.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.Engine == nil || deps.Store == nil {
		return nil, errors.New("api: engine and store are required")
	}
	return &Server{
		engine:           deps.Engine,
		st:               deps.Store,
		limiter:          deps.Limiter,
		transport:        deps.Transport,
		twilioConfigured: deps.TwilioConfigured,
		now:              time.Now,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(securityHeaders)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.HandleFunc("/api/webhook", s.webhookHandler)
	r.HandleFunc("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("FastCab API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("FastCab API shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// HandleInbound runs one inbound message through dedup, the rate limiter and
// the conversation engine. It returns false for a duplicate message, which
// must not be answered. Failures degrade to an apology reply.
func (s *Server) HandleInbound(ctx context.Context, phone, profileName, body, messageID string) (string, bool) {
	if messageID != "" {
		first, err := s.st.RecordInbound(ctx, messageID, phone)
		if err != nil {
			slog.Warn("Server.HandleInbound: dedup check failed, processing anyway", "phone", phone, "message_id", messageID, "error", err)
		} else if !first {
			slog.Info("Server.HandleInbound: duplicate message ignored", "phone", phone, "message_id", messageID)
			return "", false
		}
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, phone)
		if err != nil {
			slog.Warn("Server.HandleInbound: rate limiter unavailable, allowing", "phone", phone, "error", err)
		} else if !allowed {
			metrics.RateLimited.Inc()
			slog.Warn("Server.HandleInbound: rate limited", "phone", phone)
			return flow.ReplyRateLimited(), true
		}
	}

	reply, err := s.engine.HandleMessage(ctx, phone, strings.TrimSpace(profileName), body)
	if err != nil {
		slog.Error("Server.HandleInbound: engine failed", "phone", phone, "error", err)
		return flow.ReplyUnavailable(), true
	}
	return reply, true
}

// canonicalPhone normalizes an inbound sender address.
func canonicalPhone(from string) (string, error) {
	return messaging.CanonicalizePhone(from)
}
