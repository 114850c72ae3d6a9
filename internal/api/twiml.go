package api

import (
	"encoding/xml"
	"log/slog"
	"net/http"
)

// twimlResponse is the TwiML document Twilio expects from a messaging webhook.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Message *twimlMessage `xml:"Message,omitempty"`
}

type twimlMessage struct {
	Body string `xml:",chardata"`
}

// renderTwiML encodes text as a single reply message. Empty text yields a
// response with no message, which tells Twilio not to reply.
func renderTwiML(text string) ([]byte, error) {
	doc := twimlResponse{}
	if text != "" {
		doc.Message = &twimlMessage{Body: text}
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// writeTwiML writes text as a 200 TwiML response.
func writeTwiML(w http.ResponseWriter, text string) {
	data, err := renderTwiML(text)
	if err != nil {
		slog.Error("Server.writeTwiML: failed to render TwiML", "error", err)
		data = []byte(xml.Header + "<Response></Response>")
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Server.writeTwiML: failed to write response", "error", err)
	}
}
