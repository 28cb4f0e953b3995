package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/reconcile"
	"ms-booking/internal/webhook/storage"

	"github.com/google/uuid"

	"ms-booking/internal/payment/mercadopago"
)

// Reconciler is the slice of the reconciliation engine the webhook layer uses.
type Reconciler interface {
	Reconcile(ctx context.Context, payment *models.PaymentInfo) (*reconcile.Result, error)
}

// PaymentFetcher loads the full payment behind a webhook's data.id.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentInfo, error)
}

type Handler struct {
	Ledger        storage.Store
	Engine        Reconciler
	Payments      PaymentFetcher
	WebhookSecret string
	Logger        *logger.Logger
}

func NewHandler(ledger storage.Store, engine Reconciler, payments PaymentFetcher, secret string, log *logger.Logger) *Handler {
	if secret == "" {
		log.LogSecurity("WEBHOOK_SIGNATURE", "MP_WEBHOOK_SECRET is not set, accepting UNSIGNED Mercado Pago deliveries")
	}
	return &Handler{
		Ledger:        ledger,
		Engine:        engine,
		Payments:      payments,
		WebhookSecret: secret,
		Logger:        log,
	}
}

// Ping answers the provider's GET endpoint validation request.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("mercadopago webhook ready"))
}

// HandleMercadoPago processes one provider callback. Any event that was newly
// processed or recognized as a duplicate answers 200; non-2xx makes the
// provider retry delivery.
func (h *Handler) HandleMercadoPago(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("failed to read payload: %v", err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var note models.WebhookNotification
	if err := json.Unmarshal(body, &note); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("failed to decode payload: %v", err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Signature check happens before any ledger lookup.
	if h.WebhookSecret != "" {
		err := mercadopago.VerifySignature(h.WebhookSecret, r.Header.Get("x-signature"), r.Header.Get("x-request-id"), note.Data.ID)
		if err != nil {
			h.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("rejected delivery: %v", err))
			http.Error(w, "signature verification failed", http.StatusUnauthorized)
			return
		}
	}

	if note.ID == 0 || note.Data.ID == "" {
		h.Logger.Warn("WEBHOOK", "payload missing event id or payment id")
		http.Error(w, "missing event id or payment id", http.StatusBadRequest)
		return
	}
	eventID := strconv.FormatInt(note.ID, 10)

	existing, err := h.Ledger.GetEvent(eventID)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("ledger lookup failed for event %s: %v", eventID, err))
		http.Error(w, "ledger unavailable", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		// Providers retry on any non-2xx or timeout, so duplicates are
		// expected and must stay a cheap no-op.
		h.Logger.LogWebhook("mercadopago", eventID, "duplicate delivery, already processed")
		// Answer exactly what the first delivery answered.
		h.respondOK(w, eventID, string(existing.Outcome))
		return
	}

	outcome, detail := h.process(r.Context(), &note)

	// Ledger write comes after reconciliation: a crash in between only
	// reopens the duplicate window, which reconciliation tolerates.
	entry := &models.WebhookEvent{
		ID:         uuid.NewString(),
		Provider:   "mercadopago",
		MPEventID:  eventID,
		EventType:  note.Type,
		PaymentID:  note.Data.ID,
		Payload:    json.RawMessage(body),
		Outcome:    outcome,
		Detail:     detail,
		ReceivedAt: time.Now().UTC(),
	}
	if err := h.Ledger.SaveEvent(entry); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("failed to record event %s: %v", eventID, err))
		// The provider will redeliver and reconciliation will no-op.
		http.Error(w, "ledger write failed", http.StatusInternalServerError)
		return
	}

	h.Logger.LogWebhook("mercadopago", eventID, fmt.Sprintf("recorded with outcome %s", outcome))
	h.respondOK(w, eventID, string(outcome))
}

// process runs reconciliation for one fresh event and classifies the outcome.
// Reconciliation errors do not propagate as HTTP failures; the event is
// recorded as failed and an operator re-triggers it.
func (h *Handler) process(ctx context.Context, note *models.WebhookNotification) (models.EventOutcome, string) {
	if note.Type != "payment" {
		return models.OutcomeIgnored, fmt.Sprintf("unhandled event type %q", note.Type)
	}

	payment, err := h.Payments.GetPayment(ctx, note.Data.ID)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("failed to fetch payment %s: %v", note.Data.ID, err))
		return models.OutcomeFailed, fmt.Sprintf("payment fetch: %v", err)
	}

	result, err := h.Engine.Reconcile(ctx, payment)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("reconciliation failed for payment %s: %v", payment.ID, err))
		return models.OutcomeFailed, fmt.Sprintf("reconcile: %v", err)
	}
	return result.Outcome, result.Detail
}

func (h *Handler) respondOK(w http.ResponseWriter, eventID, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"event_id": eventID,
		"status":   status,
	})
}
