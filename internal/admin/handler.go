package admin

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/reconcile"
	"ms-booking/internal/utils"
	"ms-booking/internal/webhook/storage"

	"github.com/gin-gonic/gin"
)

// PaymentGateway is the provider surface the admin actions need.
type PaymentGateway interface {
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentInfo, error)
	CapturePayment(ctx context.Context, paymentID string, amount *float64) (*models.PaymentInfo, error)
	CancelPayment(ctx context.Context, paymentID string) (*models.PaymentInfo, error)
	RefundPayment(ctx context.Context, paymentID string, amount *float64) (*models.PaymentActionResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, payment *models.PaymentInfo) (*reconcile.Result, error)
}

type BookingStore interface {
	GetBooking(ctx context.Context, kind models.BookingKind, id string) (*models.Booking, error)
}

// Handler exposes the operator-facing payment actions. Every mutation runs
// the provider call first and then feeds the resulting payment state through
// the same reconciliation engine the webhooks use, so booking state never
// diverges between the two paths.
type Handler struct {
	Payments PaymentGateway
	Engine   Reconciler
	Ledger   storage.Store
	Bookings BookingStore
	Logger   *logger.Logger
}

func NewHandler(payments PaymentGateway, engine Reconciler, ledger storage.Store, bookings BookingStore, log *logger.Logger) *Handler {
	return &Handler{
		Payments: payments,
		Engine:   engine,
		Ledger:   ledger,
		Bookings: bookings,
		Logger:   log,
	}
}

type amountRequest struct {
	Amount *float64 `json:"amount"`
}

// GetPayment returns the provider's current view of a payment, normalized.
func (h *Handler) GetPayment(c *gin.Context) {
	paymentID := c.Param("paymentId")

	payment, err := h.Payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Failed to fetch payment", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Payment status", payment))
}

// CapturePayment captures an authorized payment, optionally for a partial
// amount, and reconciles the booking against the result.
func (h *Handler) CapturePayment(c *gin.Context) {
	h.paymentAction(c, "capture", func(ctx context.Context, paymentID string, amount *float64) (*models.PaymentInfo, error) {
		return h.Payments.CapturePayment(ctx, paymentID, amount)
	})
}

// CancelPayment voids an uncaptured payment and reconciles the booking.
func (h *Handler) CancelPayment(c *gin.Context) {
	h.paymentAction(c, "cancel", func(ctx context.Context, paymentID string, _ *float64) (*models.PaymentInfo, error) {
		return h.Payments.CancelPayment(ctx, paymentID)
	})
}

func (h *Handler) paymentAction(c *gin.Context, action string, call func(context.Context, string, *float64) (*models.PaymentInfo, error)) {
	paymentID := c.Param("paymentId")

	var req amountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
			return
		}
	}

	h.Logger.LogBooking(action, paymentID, fmt.Sprintf("requested by %s", auth.GinUserID(c)))

	payment, err := call(c.Request.Context(), paymentID, req.Amount)
	if err != nil {
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Payment "+action+" failed", err.Error()))
		return
	}

	result, err := h.Engine.Reconcile(c.Request.Context(), payment)
	if err != nil {
		// The provider already applied the action; report the reconcile
		// failure but do not pretend the action failed.
		h.Logger.Error("ADMIN", fmt.Sprintf("%s applied but reconciliation failed for %s: %v", action, paymentID, err))
		c.JSON(http.StatusOK, utils.SuccessResponse("Payment "+action+" applied, reconciliation pending", payment))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payment "+action+" applied", gin.H{
		"payment":        payment,
		"reconciliation": result,
	}))
}

// RefundPayment refunds a payment, fully or partially, then re-reads the
// payment and reconciles. Refund responses do not carry the full payment
// state, hence the extra read.
func (h *Handler) RefundPayment(c *gin.Context) {
	paymentID := c.Param("paymentId")

	var req amountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
			return
		}
	}

	h.Logger.LogBooking("refund", paymentID, fmt.Sprintf("requested by %s", auth.GinUserID(c)))

	refund, err := h.Payments.RefundPayment(c.Request.Context(), paymentID, req.Amount)
	if err != nil {
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Payment refund failed", err.Error()))
		return
	}

	payment, err := h.Payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.Logger.Error("ADMIN", fmt.Sprintf("refund applied but payment re-read failed for %s: %v", paymentID, err))
		c.JSON(http.StatusOK, utils.SuccessResponse("Refund applied, reconciliation pending", refund))
		return
	}

	result, err := h.Engine.Reconcile(c.Request.Context(), payment)
	if err != nil {
		h.Logger.Error("ADMIN", fmt.Sprintf("refund applied but reconciliation failed for %s: %v", paymentID, err))
		c.JSON(http.StatusOK, utils.SuccessResponse("Refund applied, reconciliation pending", refund))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Refund applied", gin.H{
		"refund":         refund,
		"reconciliation": result,
	}))
}

// ListFailedEvents returns recent ledger entries that failed reconciliation.
func (h *Handler) ListFailedEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid limit", "limit must be an integer between 1 and 500"))
			return
		}
		limit = parsed
	}

	events, err := h.Ledger.ListFailed(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to list events", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Failed webhook events", events))
}

// RetriggerEvent re-runs reconciliation for a ledger entry that failed.
// This is the only recovery path for events recorded as failed; ingestion
// never retries on its own.
func (h *Handler) RetriggerEvent(c *gin.Context) {
	eventID := c.Param("eventId")

	entry, err := h.Ledger.GetEvent(eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Ledger lookup failed", err.Error()))
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Unknown event", "no ledger entry for event id "+eventID))
		return
	}
	if entry.PaymentID == "" {
		c.JSON(http.StatusConflict, utils.ErrorResponse("Event not retriggerable", "ledger entry carries no payment id"))
		return
	}

	h.Logger.LogWebhook(entry.Provider, eventID, fmt.Sprintf("re-trigger requested by %s", auth.GinUserID(c)))

	payment, err := h.Payments.GetPayment(c.Request.Context(), entry.PaymentID)
	if err != nil {
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Failed to fetch payment", err.Error()))
		return
	}

	result, err := h.Engine.Reconcile(c.Request.Context(), payment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Reconciliation failed", err.Error()))
		return
	}

	if err := h.Ledger.UpdateOutcome(eventID, result.Outcome, result.Detail); err != nil {
		h.Logger.Error("ADMIN", fmt.Sprintf("re-trigger reconciled %s but ledger update failed: %v", eventID, err))
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Event re-triggered", result))
}

// GetVoucher serves the stored voucher QR for a confirmed booking.
func (h *Handler) GetVoucher(c *gin.Context) {
	kind := models.BookingKind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid booking kind", "unknown kind "+c.Param("kind")))
		return
	}

	booking, err := h.Bookings.GetBooking(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Booking lookup failed", err.Error()))
		return
	}
	if booking == nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Booking not found", ""))
		return
	}
	if len(booking.VoucherQR) == 0 {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("No voucher", "booking has no voucher, it may not be confirmed yet"))
		return
	}

	c.Data(http.StatusOK, "image/png", booking.VoucherQR)
}
