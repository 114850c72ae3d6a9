package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/FastCab/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio REST API.
// Inbound messages arrive through the HTTP webhook, so Start has nothing to run.
type TwilioService struct {
	client twiliowhatsapp.Sender // real Twilio client or MockClient
	lifecycle
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService around client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start is a no-op for Twilio.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop rejects further sends.
func (s *TwilioService) Stop() error {
	if s.stop() {
		slog.Info("TwilioService stopped")
	}
	return nil
}

// SendMessage sends a message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	err = s.client.SendMessage(ctx, canonicalTo, body)
	recordSend(TransportTwilio, err)
	return err
}
