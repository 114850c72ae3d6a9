// Package api provides the HTTP surface of FastCab: the Twilio WhatsApp
// webhook, a health check and Prometheus metrics.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/FastCab/internal/flow"
	"github.com/BTreeMap/FastCab/internal/models"
)

// webhookStatusText answers GET on the webhook URL so operators can check wiring.
const webhookStatusText = "Webhook is working!"

// webhookHandler receives Twilio's form-encoded inbound WhatsApp messages and
// answers with TwiML. Every accepted POST gets a 200 so Twilio does not retry.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, webhookStatusText)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.Body != nil {
		defer r.Body.Close()
	}

	written := false
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Server.webhookHandler: recovered from panic", "panic", rec)
			if !written {
				writeTwiML(w, flow.ReplyUnavailable())
			}
		}
	}()

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" || strings.TrimSpace(body) == "" {
		slog.Warn("Server.webhookHandler: missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields: From and Body", http.StatusBadRequest)
		return
	}
	phone, err := canonicalPhone(from)
	if err != nil {
		// Present but unusable: answer in-channel rather than with a 4xx.
		slog.Warn("Server.webhookHandler: invalid sender", "from", from, "error", err)
		written = true
		writeTwiML(w, flow.ReplyInvalidSender())
		return
	}

	messageID := r.PostFormValue("MessageSid")
	slog.Debug("Server.webhookHandler: inbound message", "phone", phone, "message_id", messageID, "body_length", len(body))

	// Duplicates come back with an empty reply, rendered as an empty <Response>.
	reply, _ := s.HandleInbound(r.Context(), phone, r.PostFormValue("ProfileName"), body, messageID)
	written = true
	writeTwiML(w, reply)
}

// healthHandler reports liveness and which transport is configured.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info := models.HealthInfo{
		Timestamp:        s.now().UTC().Format(time.RFC3339),
		Transport:        s.transport,
		TwilioConfigured: s.twilioConfigured,
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("FastCab is running", info))
}
