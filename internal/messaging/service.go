// Package messaging provides the outbound WhatsApp transports used by FastCab.
//
// A Service sends proactive messages (trip notifications) over either the
// Twilio REST API or a direct whatsmeow connection.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/BTreeMap/FastCab/internal/metrics"
	"github.com/BTreeMap/FastCab/internal/twiliowhatsapp"
)

// Transport names used in configuration and metrics labels.
const (
	TransportTwilio    = "twilio"
	TransportWhatsmeow = "whatsmeow"
)

// minPhoneDigits is the shortest number accepted as a recipient.
const minPhoneDigits = 6

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var nonDigits = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient normalizes a phone number to "+digits".
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., inbound event handling).
	Start(ctx context.Context) error

	// Stop stops background processing. Later sends return ErrServiceStopped.
	Stop() error
}

// CanonicalizePhone strips the "whatsapp:" channel prefix and all
// non-digits, returning "+digits".
func CanonicalizePhone(recipient string) (string, error) {
	trimmed := twiliowhatsapp.StripChannelPrefix(recipient)
	if trimmed == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	digits := nonDigits.ReplaceAllString(trimmed, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < minPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", digits, minPhoneDigits)
	}
	return "+" + digits, nil
}

// lifecycle tracks the stopped flag shared by the transports.
type lifecycle struct {
	mu      sync.RWMutex
	stopped bool
}

func (l *lifecycle) isStopped() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stopped
}

// stop marks the service stopped and reports whether this call did it.
func (l *lifecycle) stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.stopped = true
	return true
}

func recordSend(transport string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	metrics.OutboundMessages.WithLabelValues(transport, result).Inc()
}
