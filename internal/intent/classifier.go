package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/FastCab/internal/catalog"
	"github.com/BTreeMap/FastCab/internal/models"
)

// DefaultJoinCode is the Twilio sandbox join keyword.
const DefaultJoinCode = "cap-pleasure"

var (
	// fromToPattern matches "from X to Y" anywhere, covering "ride from ..." and "book a ride from ...".
	fromToPattern = regexp.MustCompile(`\bfrom\s+(.+?)\s+to\s+(.+)$`)
	// bareRoutePattern matches "X to Y" with an optional leading "ride"/"book (a) ride".
	bareRoutePattern = regexp.MustCompile(`^(?:(?:book\s+)?(?:a\s+)?ride\s+)?(.+?)\s+to\s+(.+)$`)
)

var (
	greetings    = setOf("hi", "hello", "hey", "start", "menu", "main menu", "0")
	trackWords   = setOf("track", "track ride", "track my ride", "status")
	cancelWords  = setOf("cancel", "cancel ride", "cancel trip", "cancel booking")
	confirmWords = setOf("yes", "y", "yes cancel", "confirm")
	declineWords = setOf("no", "n", "keep", "keep ride")
	paymentWords = map[string]models.PaymentMethod{
		"cash":          models.PaymentCash,
		"pay cash":      models.PaymentCash,
		"transfer":      models.PaymentTransfer,
		"bank transfer": models.PaymentTransfer,
		"pay transfer":  models.PaymentTransfer,
	}
)

// RouteExtractor proposes pickup and dropoff names from free text. It backs
// the optional GenAI fallback; returned names still go through the catalog.
type RouteExtractor interface {
	ExtractRoute(ctx context.Context, text string) (pickup, dropoff string, err error)
}

// Opts holds configuration for a Classifier.
type Opts struct {
	JoinCode  string
	Extractor RouteExtractor
}

// Option defines a function for configuring a Classifier.
type Option func(*Opts)

// WithJoinCode overrides the sandbox join keyword.
func WithJoinCode(code string) Option {
	return func(o *Opts) { o.JoinCode = code }
}

// WithRouteExtractor enables the GenAI route fallback.
func WithRouteExtractor(e RouteExtractor) Option {
	return func(o *Opts) { o.Extractor = e }
}

// Classifier maps inbound text to an intent. Safe for concurrent use.
type Classifier struct {
	catalog   *catalog.Catalog
	joinCode  string
	extractor RouteExtractor
}

// NewClassifier creates a classifier resolving locations against cat.
func NewClassifier(cat *catalog.Catalog, opts ...Option) *Classifier {
	cfg := Opts{JoinCode: DefaultJoinCode}
	for _, opt := range opts {
		opt(&cfg)
	}
	code := stripSpaces(strings.ToLower(cfg.JoinCode))
	if code == "" {
		code = DefaultJoinCode
	}
	return &Classifier{catalog: cat, joinCode: code, extractor: cfg.Extractor}
}

// Classify returns the first matching intent in fixed priority order.
func (c *Classifier) Classify(ctx context.Context, text string, cc Context) Result {
	t := normalize(text)
	if t == "" {
		return unknown(ReasonNone)
	}

	if strings.Contains(stripSpaces(t), c.joinCode) {
		return Result{Intent: Connect}
	}

	if r, ok := c.matchRoute(t); ok {
		return r
	}

	if n, isNumber := parseNumber(t); isNumber {
		if r, ok := classifyNumber(n, cc); ok {
			return r
		}
	}

	if trackWords[t] {
		if !cc.HasActiveBooking {
			return unknown(ReasonNoActiveTrip)
		}
		return Result{Intent: Track}
	}

	if cancelWords[t] {
		if !cc.HasActiveBooking {
			return unknown(ReasonNoActiveTrip)
		}
		return Result{Intent: Cancel}
	}

	if method, ok := paymentWords[t]; ok {
		if cc.State != models.StateAwaitingPayment && cc.State != models.StateAwaitingRating {
			return unknown(ReasonNothingToPay)
		}
		return Result{Intent: Pay, Payment: method}
	}

	if cc.State == models.StateCancelConfirm {
		if confirmWords[t] {
			return Result{Intent: Confirm}
		}
		if declineWords[t] {
			return Result{Intent: Decline}
		}
	}

	if greetings[t] {
		return Result{Intent: Greet}
	}

	if strings.Contains(t, "help") {
		return Result{Intent: Help}
	}

	if r, ok := c.extractRoute(ctx, text); ok {
		return r
	}

	return unknown(ReasonNone)
}

// matchRoute handles the book patterns. An explicit "from ... to ..." that
// fails to resolve is reported as unknown location; a bare "X to Y" that
// fails falls through to later rules.
func (c *Classifier) matchRoute(t string) (Result, bool) {
	if m := fromToPattern.FindStringSubmatch(t); m != nil {
		return c.resolveRoute(m[1], m[2], true)
	}
	if m := bareRoutePattern.FindStringSubmatch(t); m != nil {
		return c.resolveRoute(m[1], m[2], false)
	}
	return Result{}, false
}

func (c *Classifier) resolveRoute(pickupText, dropoffText string, explicit bool) (Result, bool) {
	pickup, err := c.catalog.Resolve(pickupText)
	if err != nil {
		if !explicit {
			return Result{}, false
		}
		return Result{Intent: Unknown, Reason: ReasonUnknownLocation, Unresolved: strings.TrimSpace(pickupText)}, true
	}
	dropoff, err := c.catalog.Resolve(dropoffText)
	if err != nil {
		if !explicit {
			return Result{}, false
		}
		return Result{Intent: Unknown, Reason: ReasonUnknownLocation, Unresolved: strings.TrimSpace(dropoffText)}, true
	}
	if pickup.Key == dropoff.Key {
		return unknown(ReasonSameLocation), true
	}
	return Result{Intent: Book, Pickup: pickup, Dropoff: dropoff}, true
}

// classifyNumber resolves a bare number against the two numeric inputs:
// ride selection in selecting_ride and rating in awaiting_rating.
func classifyNumber(n int, cc Context) (Result, bool) {
	switch cc.State {
	case models.StateSelectingRide:
		if !cc.HasPendingRide {
			return unknown(ReasonNoPendingRide), true
		}
		if n >= 1 && n <= 3 {
			return Result{Intent: SelectRide, Choice: n}, true
		}
		if n == 0 {
			return Result{}, false
		}
		return unknown(ReasonInvalidSelection), true
	case models.StateAwaitingRating:
		if n >= 1 && n <= 5 {
			return Result{Intent: Rate, Rating: n}, true
		}
		if n == 0 {
			return Result{}, false
		}
		return unknown(ReasonInvalidRating), true
	default:
		if n >= 1 && n <= 3 {
			return unknown(ReasonNoPendingRide), true
		}
		return Result{}, false
	}
}

func (c *Classifier) extractRoute(ctx context.Context, text string) (Result, bool) {
	if c.extractor == nil {
		return Result{}, false
	}
	pickup, dropoff, err := c.extractor.ExtractRoute(ctx, text)
	if err != nil {
		slog.Warn("Classifier.extractRoute: route extraction failed", "error", err)
		return Result{}, false
	}
	if pickup == "" || dropoff == "" {
		return Result{}, false
	}
	r, ok := c.resolveRoute(pickup, dropoff, false)
	if !ok || r.Intent != Book {
		slog.Debug("Classifier.extractRoute: extracted route did not resolve", "pickup", pickup, "dropoff", dropoff)
		return Result{}, false
	}
	return r, true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// multiDigit marks a numeric reply longer than one digit. It is never a valid
// ride choice or rating.
const multiDigit = -1

// parseNumber accepts up to three ASCII digits. Only a single digit yields
// its value; "01", "003" and "12" yield multiDigit.
func parseNumber(t string) (int, bool) {
	if t == "" || len(t) > 3 {
		return 0, false
	}
	for i := 0; i < len(t); i++ {
		if t[i] < '0' || t[i] > '9' {
			return 0, false
		}
	}
	if len(t) > 1 {
		return multiDigit, true
	}
	return int(t[0] - '0'), true
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
