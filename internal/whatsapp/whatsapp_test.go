package whatsapp

import (
	"context"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func textEvent(sender, body string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID(sender, JIDSuffix),
				Sender: types.NewJID(sender, JIDSuffix),
			},
			ID:       "3EB0C767D26A1D",
			PushName: "Tolu",
		},
		Message: &waE2E.Message{Conversation: &body},
	}
}

func TestInboundFromEvent(t *testing.T) {
	in, ok := inboundFromEvent(textEvent("2348012345678", "join cap-pleasure"))
	if !ok {
		t.Fatal("expected text message to be accepted")
	}
	if in.From != "+2348012345678" {
		t.Errorf("From = %q", in.From)
	}
	if in.Body != "join cap-pleasure" {
		t.Errorf("Body = %q", in.Body)
	}
	if in.ProfileName != "Tolu" {
		t.Errorf("ProfileName = %q", in.ProfileName)
	}
	if in.MessageID != "3EB0C767D26A1D" {
		t.Errorf("MessageID = %q", in.MessageID)
	}
}

func TestInboundFromEvent_ExtendedText(t *testing.T) {
	text := "from ikoyi to vi"
	evt := textEvent("2348012345678", "")
	evt.Message = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: &text}}

	in, ok := inboundFromEvent(evt)
	if !ok || in.Body != text {
		t.Fatalf("expected extended text %q, got %q (ok=%v)", text, in.Body, ok)
	}
}

func TestInboundFromEvent_Skipped(t *testing.T) {
	fromMe := textEvent("2348012345678", "hi")
	fromMe.Info.IsFromMe = true

	group := textEvent("2348012345678", "hi")
	group.Info.IsGroup = true

	noText := textEvent("2348012345678", "")
	noText.Message = &waE2E.Message{}

	tests := map[string]*events.Message{
		"nil event":  nil,
		"from me":    fromMe,
		"group chat": group,
		"non-text":   noText,
	}
	for name, evt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, ok := inboundFromEvent(evt); ok {
				t.Error("expected message to be skipped")
			}
		})
	}
}

func TestNewClient_RequiresDSN(t *testing.T) {
	if _, err := NewClient(context.Background()); err == nil {
		t.Fatal("expected error without a device store DSN")
	}
}

func TestOptions(t *testing.T) {
	opts := &Opts{}
	WithDBDSN("file:/tmp/wa.db?_foreign_keys=on")(opts)
	WithQRCodeOutput("/tmp/qr.txt")(opts)
	WithNumericCode()(opts)

	if opts.DBDSN != "file:/tmp/wa.db?_foreign_keys=on" {
		t.Errorf("DBDSN = %q", opts.DBDSN)
	}
	if opts.QRPath != "/tmp/qr.txt" {
		t.Errorf("QRPath = %q", opts.QRPath)
	}
	if !opts.NumericCode {
		t.Error("NumericCode not set")
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	if err := m.SendMessage(context.Background(), "+2348012345678", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Sent) != 1 || m.Sent[0].Body != "hi" {
		t.Fatalf("unexpected sent messages: %+v", m.Sent)
	}
}
