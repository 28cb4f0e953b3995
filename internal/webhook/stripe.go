package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Deprecated: the Stripe path only exists to drain legacy payment intents
// created before the Mercado Pago migration. New checkouts never touch it.

type StripeHandler struct {
	Handler       *Handler
	WebhookSecret string
}

func NewStripeHandler(h *Handler, secret string) *StripeHandler {
	return &StripeHandler{Handler: h, WebhookSecret: secret}
}

// HandleStripe verifies and processes a legacy Stripe webhook delivery
// through the same ledger and reconciliation engine as the Mercado Pago path.
func (s *StripeHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	log := s.Handler.Logger

	if s.WebhookSecret == "" {
		log.Error("WEBHOOK", "Stripe webhook secret is not configured")
		http.Error(w, "webhook processing error", http.StatusInternalServerError)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("WEBHOOK", fmt.Sprintf("failed to read stripe payload: %v", err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret, opts)
	if err != nil {
		log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("rejected stripe delivery: %v", err))
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	existing, err := s.Handler.Ledger.GetEvent(event.ID)
	if err != nil {
		log.Error("WEBHOOK", fmt.Sprintf("ledger lookup failed for stripe event %s: %v", event.ID, err))
		http.Error(w, "ledger unavailable", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		log.LogWebhook("stripe", event.ID, "duplicate delivery, already processed")
		s.Handler.respondOK(w, event.ID, string(existing.Outcome))
		return
	}

	outcome, detail, paymentID := s.process(r, event)

	entry := &models.WebhookEvent{
		ID:         uuid.NewString(),
		Provider:   "stripe",
		MPEventID:  event.ID,
		EventType:  string(event.Type),
		PaymentID:  paymentID,
		Payload:    json.RawMessage(payload),
		Outcome:    outcome,
		Detail:     detail,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.Handler.Ledger.SaveEvent(entry); err != nil {
		log.Error("WEBHOOK", fmt.Sprintf("failed to record stripe event %s: %v", event.ID, err))
		http.Error(w, "ledger write failed", http.StatusInternalServerError)
		return
	}

	log.LogWebhook("stripe", event.ID, fmt.Sprintf("recorded with outcome %s", outcome))
	s.Handler.respondOK(w, event.ID, string(outcome))
}

func (s *StripeHandler) process(r *http.Request, event stripe.Event) (models.EventOutcome, string, string) {
	log := s.Handler.Logger

	var status models.ProviderPaymentStatus
	switch event.Type {
	case "payment_intent.succeeded":
		status = models.MPStatusApproved
	case "payment_intent.payment_failed":
		status = models.MPStatusRejected
	case "charge.refunded":
		status = models.MPStatusRefunded
	default:
		log.Info("WEBHOOK", fmt.Sprintf("unhandled stripe event type: %s", event.Type))
		return models.OutcomeIgnored, fmt.Sprintf("unhandled event type %q", event.Type), ""
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		log.Error("WEBHOOK", fmt.Sprintf("failed to unmarshal payment intent: %v", err))
		return models.OutcomeFailed, fmt.Sprintf("unmarshal payment intent: %v", err), ""
	}

	ref := intent.Metadata["external_reference"]
	if ref == "" {
		// Oldest legacy intents carried booking_id and kind separately.
		if bookingID, ok := intent.Metadata["booking_id"]; ok {
			ref = intent.Metadata["kind"] + ":" + bookingID
		}
	}
	if ref == "" {
		log.Error("WEBHOOK", "stripe payment intent carries no booking reference")
		return models.OutcomeUnmatched, "payment intent has no booking reference in metadata", intent.ID
	}

	payment := &models.PaymentInfo{
		ID:                intent.ID,
		Status:            status,
		Amount:            float64(intent.Amount) / 100,
		Currency:          string(intent.Currency),
		ExternalReference: ref,
	}

	result, err := s.Handler.Engine.Reconcile(r.Context(), payment)
	if err != nil {
		log.Error("WEBHOOK", fmt.Sprintf("reconciliation failed for stripe intent %s: %v", intent.ID, err))
		return models.OutcomeFailed, fmt.Sprintf("reconcile: %v", err), intent.ID
	}
	return result.Outcome, result.Detail, intent.ID
}
