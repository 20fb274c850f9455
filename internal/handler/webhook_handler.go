package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/relayworks/outreach-backend/internal/logger"
	"github.com/relayworks/outreach-backend/internal/metrics"
	"github.com/relayworks/outreach-backend/internal/repository"
	"github.com/relayworks/outreach-backend/internal/service"
)

// trackingGIF is a transparent 1x1 pixel served on open-tracking hits.
var trackingGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// WebhookHandler ingests provider callbacks. Each channel has its own shared
// secret; an empty secret disables verification for local development.
type WebhookHandler struct {
	Inbound *service.InboundProcessor

	EmailSecret    string
	CallSecret     string
	LinkedInSecret string
}

func (h *WebhookHandler) Routes(r chi.Router) {
	r.Post("/webhooks/email", h.EmailWebhook)
	r.Post("/webhooks/call", h.CallWebhook)
	r.Post("/webhooks/linkedin", h.LinkedInWebhook)
	r.Get("/track/open/{logID}", h.TrackOpen)
}

// verify checks the X-Webhook-Signature header, hex(hmac-sha256(secret, body)).
func verify(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

func (h *WebhookHandler) readVerified(w http.ResponseWriter, r *http.Request, secret string) []byte {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return nil
	}
	if !verify(secret, body, r.Header.Get("X-Webhook-Signature")) {
		metrics.WebhookRejectionsTotal.Inc()
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil
	}
	return body
}

// EmailWebhook handles inbound email events from the mail pipeline. Replies
// attribute through the plus-addressed recipient; bounces carry the bounced
// address and the tenant.
func (h *WebhookHandler) EmailWebhook(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r, h.EmailSecret)
	if body == nil {
		return
	}

	var payload struct {
		Event     string    `json:"event"`
		To        string    `json:"to"`
		From      string    `json:"from"`
		Subject   string    `json:"subject"`
		Body      string    `json:"body"`
		MessageID string    `json:"message_id"`
		CompanyID uuid.UUID `json:"company_id"`
		Email     string    `json:"email"`
		Reason    string    `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	switch payload.Event {
	case "reply":
		logID, ok := service.AttributeReply(payload.To)
		if !ok {
			// Not addressed to a tracked thread; acknowledge and move on.
			log := logger.WithComponent("webhooks")
			log.Warn().Str("to", payload.To).Msg("unattributable reply")
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := h.Inbound.RecordReply(r.Context(), logID, payload.MessageID, payload.From, payload.Subject, payload.Body); err != nil {
			http.Error(w, "failed to record reply: "+err.Error(), http.StatusInternalServerError)
			return
		}
	case "bounce":
		if payload.CompanyID == uuid.Nil || payload.Email == "" {
			http.Error(w, "bounce requires company_id and email", http.StatusBadRequest)
			return
		}
		if err := h.Inbound.RecordBounce(r.Context(), payload.CompanyID, payload.Email, payload.Reason); err != nil {
			http.Error(w, "failed to record bounce: "+err.Error(), http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// TrackOpen serves the tracking pixel and counts the open. The pixel is
// always returned, even when the log id is stale, so broken images never
// appear in a lead's mail client.
func (h *WebhookHandler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	if logID, err := uuid.Parse(chi.URLParam(r, "logID")); err == nil {
		if err := h.Inbound.RecordOpen(r.Context(), logID); err != nil {
			log := logger.WithComponent("webhooks")
			log.Warn().Err(err).Msg("open tracking failed")
		}
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(trackingGIF)
}

// CallWebhook reconciles the telephony provider's completion callback.
func (h *WebhookHandler) CallWebhook(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r, h.CallSecret)
	if body == nil {
		return
	}

	var payload struct {
		CallID        string     `json:"call_id"`
		CallLength    int        `json:"call_length"`
		Sentiment     string     `json:"sentiment"`
		Summary       string     `json:"summary"`
		Transcript    string     `json:"concatenated_transcript"`
		RecordingURL  string     `json:"recording_url"`
		MeetingBooked bool       `json:"meeting_booked"`
		CompletedAt   *time.Time `json:"completed_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.CallID == "" {
		http.Error(w, "missing call_id", http.StatusBadRequest)
		return
	}

	completedAt := time.Now().UTC()
	if payload.CompletedAt != nil {
		completedAt = *payload.CompletedAt
	}
	err := h.Inbound.RecordCallCompletion(r.Context(), payload.CallID, repository.CallCompletion{
		Duration:         payload.CallLength,
		Sentiment:        payload.Sentiment,
		Summary:          payload.Summary,
		Transcript:       payload.Transcript,
		RecordingURL:     payload.RecordingURL,
		HasMeetingBooked: payload.MeetingBooked,
		CompletedAt:      completedAt,
	})
	if err != nil {
		http.Error(w, "failed to record completion: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// LinkedInWebhook handles integrator account and messaging events.
func (h *WebhookHandler) LinkedInWebhook(w http.ResponseWriter, r *http.Request) {
	body := h.readVerified(w, r, h.LinkedInSecret)
	if body == nil {
		return
	}

	var payload struct {
		Event      string `json:"event"`
		AccountID  string `json:"account_id"`
		ChatID     string `json:"chat_id"`
		LinkedInID string `json:"attendee_provider_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.AccountID == "" {
		http.Error(w, "missing account_id", http.StatusBadRequest)
		return
	}

	var err error
	switch payload.Event {
	case "message_received":
		err = h.Inbound.RecordLinkedInReply(r.Context(), payload.AccountID, payload.ChatID)
	case "new_relation":
		err = h.Inbound.RecordInvitationAccepted(r.Context(), payload.AccountID, payload.LinkedInID)
	case "account_status":
		err = h.Inbound.RecordAccountStatus(r.Context(), payload.AccountID, payload.Status == "connected")
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "failed to record event: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
