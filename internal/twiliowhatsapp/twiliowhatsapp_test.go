package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestClient_SendMessage(t *testing.T) {
	fake := &fakeCreator{}
	c := &Client{api: fake, fromNumber: DefaultFromNumber}

	if err := c.SendMessage(context.Background(), "+2348012345678", "Driver arrived"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.params) != 1 {
		t.Fatalf("expected 1 API call, got %d", len(fake.params))
	}
	p := fake.params[0]
	if *p.To != "whatsapp:+2348012345678" {
		t.Errorf("To = %q", *p.To)
	}
	if *p.From != DefaultFromNumber {
		t.Errorf("From = %q", *p.From)
	}
	if *p.Body != "Driver arrived" {
		t.Errorf("Body = %q", *p.Body)
	}
}

func TestClient_SendMessageError(t *testing.T) {
	apiErr := errors.New("20003 authenticate")
	c := &Client{api: &fakeCreator{err: apiErr}, fromNumber: DefaultFromNumber}

	err := c.SendMessage(context.Background(), "+2348012345678", "hi")
	if !errors.Is(err, apiErr) {
		t.Fatalf("expected wrapped API error, got %v", err)
	}
}

func TestClient_SendMessageCancelledContext(t *testing.T) {
	fake := &fakeCreator{}
	c := &Client{api: fake, fromNumber: DefaultFromNumber}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.SendMessage(ctx, "+2348012345678", "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fake.params) != 0 {
		t.Errorf("expected no API call after cancellation")
	}
}

func TestNewClient(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}

	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.FromNumber() != DefaultFromNumber {
		t.Errorf("FromNumber = %q, want default", c.FromNumber())
	}

	c, err = NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.FromNumber() != "whatsapp:+15550001111" {
		t.Errorf("FromNumber = %q", c.FromNumber())
	}
}

func TestNewClient_EnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "envtoken")
	t.Setenv("TWILIO_FROM_NUMBER", "whatsapp:+15551234567")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.FromNumber() != "whatsapp:+15551234567" {
		t.Errorf("FromNumber = %q", c.FromNumber())
	}
}

func TestChannelPrefix(t *testing.T) {
	if got := WithChannelPrefix("whatsapp:+1"); got != "whatsapp:+1" {
		t.Errorf("WithChannelPrefix doubled prefix: %q", got)
	}
	if got := StripChannelPrefix(" whatsapp:+2348012345678 "); got != "+2348012345678" {
		t.Errorf("StripChannelPrefix = %q", got)
	}
}

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", msgs[0].Body)
	}

	mock.Err = errors.New("boom")
	if err := mock.SendMessage(ctx, "12345", "again"); err == nil {
		t.Fatal("expected configured error")
	}
	if len(mock.Messages()) != 1 {
		t.Errorf("failed send should not be recorded")
	}
}
