package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/FastCab/internal/catalog"
	"github.com/BTreeMap/FastCab/internal/flow"
	"github.com/BTreeMap/FastCab/internal/genai"
	"github.com/BTreeMap/FastCab/internal/intent"
	"github.com/BTreeMap/FastCab/internal/messaging"
	"github.com/BTreeMap/FastCab/internal/ratelimit"
	"github.com/BTreeMap/FastCab/internal/recovery"
	"github.com/BTreeMap/FastCab/internal/scheduler"
	"github.com/BTreeMap/FastCab/internal/store"
	"github.com/BTreeMap/FastCab/internal/twiliowhatsapp"
	"github.com/BTreeMap/FastCab/internal/whatsapp"
)

// Default API configuration
const (
	DefaultAddr          = ":3000"
	DefaultSweepSchedule = "@every 5m"
	sweepJobName         = "session-sweep"
)

// Opts holds configuration for the API server and the components it wires.
type Opts struct {
	Addr          string
	Transport     string // messaging.TransportTwilio or messaging.TransportWhatsmeow
	JoinCode      string
	Delays        flow.Delays
	SessionTTL    time.Duration
	SweepSchedule string
	RateLimit     int
	RedisAddr     string
}

// Option defines a function for configuring the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTransport selects the outbound WhatsApp transport.
func WithTransport(transport string) Option {
	return func(o *Opts) { o.Transport = transport }
}

// WithJoinCode sets the sandbox join keyword.
func WithJoinCode(code string) Option {
	return func(o *Opts) { o.JoinCode = code }
}

// WithDelays overrides the trip notification timings.
func WithDelays(d flow.Delays) Option {
	return func(o *Opts) { o.Delays = d }
}

// WithSessionTTL sets how long an idle session survives.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithRateLimit sets the inbound messages allowed per phone per minute.
func WithRateLimit(n int) Option {
	return func(o *Opts) { o.RateLimit = n }
}

// WithRedisAddr shares the rate limiter through Redis at addr.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{
		Addr:          DefaultAddr,
		Transport:     messaging.TransportTwilio,
		JoinCode:      intent.DefaultJoinCode,
		Delays:        flow.DefaultDelays(),
		SessionTTL:    flow.DefaultSessionTTL,
		SweepSchedule: DefaultSweepSchedule,
		RateLimit:     ratelimit.DefaultLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Run wires every module, serves HTTP and blocks until SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts ...Option) error {
	cfg := buildOpts(apiOpts)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	cat := catalog.Default()
	classifier := intent.NewClassifier(cat, buildClassifierOptions(cat, cfg, genaiOpts)...)
	locks := flow.NewKeyedMutex()

	// The whatsmeow transport answers inbound messages through the server,
	// which is built after the transport.
	var srv *Server
	inbound := func(ctx context.Context, msg whatsapp.InboundMessage) string {
		reply, _ := srv.HandleInbound(ctx, msg.From, msg.ProfileName, msg.Body, msg.MessageID)
		return reply
	}
	svc, twilioConfigured, err := buildTransport(ctx, cfg.Transport, waOpts, twilioOpts, inbound)
	if err != nil {
		return err
	}

	timer := flow.NewSimpleTimer()
	notifier := flow.NewNotifier(st, cat, svc, timer, locks, cfg.Delays)
	engine, err := flow.NewEngine(flow.Dependencies{
		Store:      st,
		Catalog:    cat,
		Classifier: classifier,
		Locks:      locks,
		Notifier:   notifier,
	}, flow.WithJoinCode(cfg.JoinCode))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	rm := recovery.NewManager()
	rm.Register(recovery.NewTripRecovery(st, notifier, nil))
	if err := rm.RecoverAll(ctx); err != nil {
		slog.Warn("Recovery finished with errors", "error", err)
	}

	limiter, err := buildLimiter(ctx, cfg)
	if err != nil {
		return err
	}

	srv, err = NewServer(ServerDeps{
		Engine:           engine,
		Store:            st,
		Limiter:          limiter,
		Transport:        cfg.Transport,
		TwilioConfigured: twilioConfigured,
	})
	if err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s transport: %w", cfg.Transport, err)
	}

	sched := scheduler.NewScheduler()
	sweeper := flow.NewSweeper(st, locks, cfg.SessionTTL, nil)
	if err := sched.AddJob(sweepJobName, cfg.SweepSchedule, sweepJob(ctx, sweeper)); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	slog.Info("FastCab started", "addr", cfg.Addr, "transport", cfg.Transport, "join_code", cfg.JoinCode,
		"arrival_delay", cfg.Delays.DriverArrival, "session_ttl", cfg.SessionTTL)
	serveErr := srv.ListenAndServe(ctx, cfg.Addr)

	sched.Stop()
	notifier.Stop()
	if err := svc.Stop(); err != nil {
		slog.Warn("Transport stop failed", "error", err)
	}
	timer.Stop()
	return serveErr
}

// sweepJob runs one idle-session sweep. The sweeper records its own metrics
// and logs.
func sweepJob(ctx context.Context, sweeper *flow.Sweeper) func() {
	return func() {
		if _, err := sweeper.Sweep(ctx); err != nil {
			slog.Error("Session sweep failed", "error", err)
		}
	}
}

// buildClassifierOptions enables the GenAI route fallback when an API key is available.
func buildClassifierOptions(cat *catalog.Catalog, cfg Opts, genaiOpts []genai.Option) []intent.Option {
	opts := []intent.Option{intent.WithJoinCode(cfg.JoinCode)}

	names := make([]string, 0, len(cat.Locations()))
	for _, loc := range cat.Locations() {
		names = append(names, loc.Name)
	}
	client, err := genai.NewClient(append(genaiOpts, genai.WithKnownLocations(names))...)
	if err != nil {
		if errors.Is(err, genai.ErrMissingAPIKey) {
			slog.Info("GenAI route fallback disabled (no OpenAI API key)")
		} else {
			slog.Warn("GenAI route fallback disabled", "error", err)
		}
		return opts
	}
	slog.Info("GenAI route fallback enabled")
	return append(opts, intent.WithRouteExtractor(client))
}

// buildTransport creates the outbound messaging service for transport.
func buildTransport(ctx context.Context, transport string, waOpts []whatsapp.Option, twilioOpts []twiliowhatsapp.Option, inbound messaging.InboundHandler) (messaging.Service, bool, error) {
	switch transport {
	case messaging.TransportTwilio:
		client, err := twiliowhatsapp.NewClient(twilioOpts...)
		if err != nil {
			// Webhook replies still work through TwiML; only trip notifications are lost.
			slog.Warn("Twilio REST client unavailable; trip notifications will fail", "error", err)
			return messaging.NewTwilioService(unconfiguredSender{err: err}), false, nil
		}
		return messaging.NewTwilioService(client), true, nil
	case messaging.TransportWhatsmeow:
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client, inbound), false, nil
	default:
		return nil, false, fmt.Errorf("unknown transport %q (want %s or %s)", transport, messaging.TransportTwilio, messaging.TransportWhatsmeow)
	}
}

// unconfiguredSender fails every send with the configuration error.
type unconfiguredSender struct {
	err error
}

func (u unconfiguredSender) SendMessage(ctx context.Context, to string, body string) error {
	return u.err
}

// buildLimiter returns a Redis-backed limiter when an address is configured,
// otherwise an in-memory one. A zero or negative limit disables limiting.
func buildLimiter(ctx context.Context, cfg Opts) (ratelimit.Limiter, error) {
	if cfg.RateLimit <= 0 {
		slog.Info("Rate limiting disabled")
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		slog.Info("Rate limiting via Redis", "addr", cfg.RedisAddr, "limit", cfg.RateLimit)
		return ratelimit.NewRedisLimiter(client, ratelimit.WithLimit(cfg.RateLimit)), nil
	}
	return ratelimit.NewMemoryLimiter(ratelimit.WithLimit(cfg.RateLimit)), nil
}
