package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/FastCab/internal/whatsapp"
)

// InboundHandler turns an inbound message into the reply text. An empty
// reply sends nothing.
type InboundHandler func(ctx context.Context, msg whatsapp.InboundMessage) string

// eventSource is implemented by whatsapp.Client.
type eventSource interface {
	OnMessage(fn whatsapp.MessageHandler)
}

type disconnecter interface {
	Disconnect()
}

// WhatsAppService implements Service over a direct whatsmeow connection.
// Unlike Twilio there is no webhook, so inbound messages are read from
// client events and answered with SendMessage.
type WhatsAppService struct {
	client  whatsapp.WhatsAppSender
	handler InboundHandler
	wg      sync.WaitGroup
	lifecycle
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a WhatsAppService. handler may be nil for a send-only service.
func NewWhatsAppService(client whatsapp.WhatsAppSender, handler InboundHandler) *WhatsAppService {
	return &WhatsAppService{client: client, handler: handler}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// Start registers the inbound message handler when the client produces events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	src, ok := s.client.(eventSource)
	if !ok || s.handler == nil {
		slog.Debug("WhatsAppService Start: no event source or handler, inbound disabled")
		return nil
	}
	src.OnMessage(func(msg whatsapp.InboundMessage) {
		s.dispatch(ctx, msg)
	})
	slog.Debug("WhatsAppService inbound handler registered")
	return nil
}

// dispatch handles one inbound message off the whatsmeow event goroutine.
func (s *WhatsAppService) dispatch(ctx context.Context, msg whatsapp.InboundMessage) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "phone", msg.From)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.wg.Done()
		reply := s.handler(ctx, msg)
		if reply == "" {
			return
		}
		if err := s.deliver(ctx, msg.From, reply); err != nil {
			slog.Error("WhatsAppService reply failed", "phone", msg.From, "error", err)
		}
	}()
}

// Stop waits for in-flight replies and disconnects the client.
func (s *WhatsAppService) Stop() error {
	if !s.stop() {
		return nil
	}
	s.wg.Wait()
	if d, ok := s.client.(disconnecter); ok {
		d.Disconnect()
	}
	slog.Info("WhatsAppService stopped")
	return nil
}

// SendMessage sends a text message over whatsmeow.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	return s.deliver(ctx, to, body)
}

// deliver sends without the stopped check so in-flight replies drain during Stop.
func (s *WhatsAppService) deliver(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}

	err = s.client.SendMessage(ctx, canonicalTo, body)
	recordSend(TransportWhatsmeow, err)
	if err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
	}
	return err
}
