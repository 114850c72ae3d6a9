// Package ratelimit caps how many inbound messages a single phone may send
// per window. MemoryLimiter serves a single process; RedisLimiter shares the
// count across replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Defaults match the webhook's documented limit of 50 messages per minute.
const (
	DefaultLimit  = 50
	DefaultWindow = time.Minute
)

// Limiter decides whether key may perform one more action now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Opts holds configuration shared by the limiters.
type Opts struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

// Option defines a function for configuring a limiter.
type Option func(*Opts)

// WithLimit sets the number of actions allowed per window.
func WithLimit(n int) Option {
	return func(o *Opts) { o.Limit = n }
}

// WithWindow sets the window length.
func WithWindow(d time.Duration) Option {
	return func(o *Opts) { o.Window = d }
}

// WithClock overrides time.Now (for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

func buildOpts(opts []Option) Opts {
	cfg := Opts{Limit: DefaultLimit, Window: DefaultWindow, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// MemoryLimiter is an in-process sliding-window limiter.
type MemoryLimiter struct {
	mu     sync.Mutex
	cfg    Opts
	hits   map[string][]time.Time
	pruned time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a sliding-window limiter.
func NewMemoryLimiter(opts ...Option) *MemoryLimiter {
	cfg := buildOpts(opts)
	return &MemoryLimiter{cfg: cfg, hits: make(map[string][]time.Time), pruned: cfg.Now()}
}

// Allow records a hit for key if it is under the limit for the trailing window.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.cfg.Now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.pruned) >= l.cfg.Window {
		l.prune(cutoff)
		l.pruned = now
	}

	recent := trim(l.hits[key], cutoff)
	if len(recent) >= l.cfg.Limit {
		l.hits[key] = recent
		return false, nil
	}
	l.hits[key] = append(recent, now)
	return true, nil
}

// Len returns the number of keys currently tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// prune drops keys with no hits inside the window.
func (l *MemoryLimiter) prune(cutoff time.Time) {
	for k, v := range l.hits {
		if len(trim(v, cutoff)) == 0 {
			delete(l.hits, k)
		}
	}
}

// trim returns the suffix of hits after cutoff. hits is in ascending order.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
