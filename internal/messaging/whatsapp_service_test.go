package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BTreeMap/FastCab/internal/whatsapp"
)

// eventClient is a whatsapp sender that also delivers inbound events.
type eventClient struct {
	mu           sync.Mutex
	sent         []whatsapp.InboundMessage
	handler      whatsapp.MessageHandler
	disconnected bool
}

func (c *eventClient) SendMessage(ctx context.Context, to string, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, whatsapp.InboundMessage{From: to, Body: body})
	return nil
}

func (c *eventClient) OnMessage(fn whatsapp.MessageHandler) {
	c.handler = fn
}

func (c *eventClient) Disconnect() {
	c.disconnected = true
}

func (c *eventClient) messages() []whatsapp.InboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]whatsapp.InboundMessage(nil), c.sent...)
}

func TestWhatsAppService_SendMessageCanonicalizes(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock, nil)

	if err := svc.SendMessage(context.Background(), "+234 801 234 5678", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if len(mock.Sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.Sent))
	}
	if mock.Sent[0].From != "+2348012345678" {
		t.Errorf("expected canonical recipient, got %q", mock.Sent[0].From)
	}
}

func TestWhatsAppService_InboundReply(t *testing.T) {
	client := &eventClient{}
	var got whatsapp.InboundMessage
	svc := NewWhatsAppService(client, func(ctx context.Context, msg whatsapp.InboundMessage) string {
		got = msg
		return "Connected to FastCab"
	})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if client.handler == nil {
		t.Fatal("expected inbound handler to be registered")
	}

	client.handler(whatsapp.InboundMessage{From: "+2348012345678", Body: "join cap-pleasure", MessageID: "ABC"})
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	if got.Body != "join cap-pleasure" {
		t.Errorf("handler saw body %q", got.Body)
	}
	sent := client.messages()
	if len(sent) != 1 || sent[0].Body != "Connected to FastCab" || sent[0].From != "+2348012345678" {
		t.Fatalf("unexpected replies: %+v", sent)
	}
	if !client.disconnected {
		t.Error("expected Stop to disconnect the client")
	}
}

func TestWhatsAppService_EmptyReplyNotSent(t *testing.T) {
	client := &eventClient{}
	svc := NewWhatsAppService(client, func(ctx context.Context, msg whatsapp.InboundMessage) string {
		return ""
	})
	_ = svc.Start(context.Background())
	client.handler(whatsapp.InboundMessage{From: "+2348012345678", Body: "dup"})
	_ = svc.Stop()

	if n := len(client.messages()); n != 0 {
		t.Fatalf("expected no reply, got %d", n)
	}
}

func TestWhatsAppService_StopRejectsSends(t *testing.T) {
	client := &eventClient{}
	svc := NewWhatsAppService(client, func(ctx context.Context, msg whatsapp.InboundMessage) string {
		return "late"
	})
	_ = svc.Start(context.Background())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}

	if err := svc.SendMessage(context.Background(), "+2348012345678", "hi"); !errors.Is(err, ErrServiceStopped) {
		t.Fatalf("expected ErrServiceStopped, got %v", err)
	}
	client.handler(whatsapp.InboundMessage{From: "+2348012345678", Body: "hi"})
	if n := len(client.messages()); n != 0 {
		t.Fatalf("expected inbound dropped after stop, got %d replies", n)
	}
}

func TestWhatsAppService_StartWithoutEvents(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient(), nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}
