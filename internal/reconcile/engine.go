package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type BookingStore interface {
	ApplyTransition(ctx context.Context, kind models.BookingKind, id string, tr db.Transition) (bool, error)
	SetVoucher(ctx context.Context, kind models.BookingKind, id string, qr []byte) error
}

type BookingResolver interface {
	ResolveBooking(ctx context.Context, externalRef string) (*models.Booking, error)
}

type MutationLock interface {
	Acquire(ctx context.Context, kind models.BookingKind, bookingID, owner string) (bool, error)
	Release(ctx context.Context, kind models.BookingKind, bookingID, owner string) error
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type VoucherGenerator interface {
	GenerateEncryptedQR(b models.Booking) ([]byte, error)
}

// Engine maps provider payment statuses onto booking transitions and applies
// them exactly once per meaningful state change. Idempotence lives here, not
// in the webhook ledger: re-running the same payment status against the same
// booking is always a no-op.
type Engine struct {
	Store    BookingStore
	Resolver BookingResolver
	Lock     MutationLock
	Kafka    Publisher
	Voucher  VoucherGenerator
	Topics   config.TopicConfig
	Logger   *logger.Logger
}

func NewEngine(store BookingStore, resolver BookingResolver, lock MutationLock, kafka Publisher, voucher VoucherGenerator, topics config.TopicConfig, log *logger.Logger) *Engine {
	return &Engine{
		Store:    store,
		Resolver: resolver,
		Lock:     lock,
		Kafka:    kafka,
		Voucher:  voucher,
		Topics:   topics,
		Logger:   log,
	}
}

// Result reports how a payment was reconciled against booking state.
type Result struct {
	Outcome models.EventOutcome
	Detail  string
	Applied bool
}

// mapping is the target pair plus the statuses the transition may fire from.
type mapping struct {
	to            models.StatePair
	allowedFrom   []models.BookingStatus
	setApprovedAt bool
	setCanceledAt bool
}

// statusMapping translates a provider payment report. Unknown statuses return
// ok=false and cause no mutation.
func statusMapping(payment *models.PaymentInfo) (mapping, bool) {
	switch payment.Status {
	case models.MPStatusApproved:
		// A partially refunded payment stays "approved" on the provider side
		// with a non-zero refunded amount; the reservation itself stands.
		if payment.AmountRefunded > 0 && payment.AmountRefunded < payment.Amount {
			return mapping{
				to:          models.StatePair{Status: models.BookingConfirmed, PaymentStatus: models.PayPartiallyRefunded},
				allowedFrom: []models.BookingStatus{models.BookingConfirmed},
			}, true
		}
		return mapping{
			to:            models.StatePair{Status: models.BookingConfirmed, PaymentStatus: models.PayApproved},
			allowedFrom:   []models.BookingStatus{models.BookingDraft, models.BookingPending},
			setApprovedAt: true,
		}, true
	case models.MPStatusPending:
		return mapping{
			to:          models.StatePair{Status: models.BookingPending, PaymentStatus: models.PayPending},
			allowedFrom: []models.BookingStatus{models.BookingDraft, models.BookingPending},
		}, true
	case models.MPStatusInProcess:
		return mapping{
			to:          models.StatePair{Status: models.BookingPending, PaymentStatus: models.PayProcessing},
			allowedFrom: []models.BookingStatus{models.BookingDraft, models.BookingPending},
		}, true
	case models.MPStatusRejected:
		return mapping{
			to:            models.StatePair{Status: models.BookingCanceled, PaymentStatus: models.PayFailed},
			allowedFrom:   []models.BookingStatus{models.BookingDraft, models.BookingPending},
			setCanceledAt: true,
		}, true
	case models.MPStatusCancelled:
		return mapping{
			to:            models.StatePair{Status: models.BookingCanceled, PaymentStatus: models.PayCanceled},
			allowedFrom:   []models.BookingStatus{models.BookingDraft, models.BookingPending},
			setCanceledAt: true,
		}, true
	case models.MPStatusRefunded, models.MPStatusChargedBack:
		// A refund after confirmation cancels the reservation.
		return mapping{
			to:            models.StatePair{Status: models.BookingCanceled, PaymentStatus: models.PayRefunded},
			allowedFrom:   []models.BookingStatus{models.BookingDraft, models.BookingPending, models.BookingConfirmed},
			setCanceledAt: true,
		}, true
	}
	return mapping{}, false
}

// Reconcile applies one provider-reported payment status to the booking the
// payment's external reference points at.
func (e *Engine) Reconcile(ctx context.Context, payment *models.PaymentInfo) (*Result, error) {
	b, err := e.Resolver.ResolveBooking(ctx, payment.ExternalReference)
	if err != nil {
		return nil, fmt.Errorf("resolve booking: %w", err)
	}
	if b == nil {
		// Acknowledged to the provider; an error here would only cause
		// futile retries.
		e.Logger.Warn("RECONCILE", fmt.Sprintf("payment %s references no known booking (%q)", payment.ID, payment.ExternalReference))
		return &Result{Outcome: models.OutcomeUnmatched, Detail: "no booking for external reference"}, nil
	}

	m, ok := statusMapping(payment)
	if !ok {
		e.Logger.Warn("RECONCILE", fmt.Sprintf("unrecognized provider status %q for payment %s", payment.Status, payment.ID))
		return &Result{Outcome: models.OutcomeIgnored, Detail: fmt.Sprintf("unrecognized status %q", payment.Status)}, nil
	}

	current := b.StatePair()
	if current == m.to {
		// Duplicate or re-delivered event; the state is already what the
		// provider reports.
		return &Result{Outcome: models.OutcomeProcessed, Detail: "state already current"}, nil
	}

	if !statusAllowed(current.Status, m.allowedFrom) {
		if conflicting(current, m.to) {
			e.Logger.Warn("RECONCILE", fmt.Sprintf("conflicting transition for %s booking %s: %s/%s -> %s/%s, not applied",
				b.Kind, b.BookingID, current.Status, current.PaymentStatus, m.to.Status, m.to.PaymentStatus))
			return &Result{Outcome: models.OutcomeConflict, Detail: fmt.Sprintf("booking is %s, refusing %s", current.Status, m.to.Status)}, nil
		}
		// Out-of-order delivery, e.g. a pending event arriving after the
		// approved one. Never regress.
		return &Result{Outcome: models.OutcomeProcessed, Detail: fmt.Sprintf("stale %s event ignored, booking is %s", payment.Status, current.Status)}, nil
	}

	owner := "webhook:" + payment.ID
	if e.Lock != nil {
		// Contention reduction only; the conditional update below is the
		// correctness mechanism.
		if got, lockErr := e.Lock.Acquire(ctx, b.Kind, b.BookingID, owner); lockErr != nil {
			e.Logger.Warn("RECONCILE", fmt.Sprintf("lock acquire failed for booking %s: %v", b.BookingID, lockErr))
		} else if got {
			defer func() {
				if relErr := e.Lock.Release(ctx, b.Kind, b.BookingID, owner); relErr != nil {
					e.Logger.Warn("RECONCILE", fmt.Sprintf("lock release failed for booking %s: %v", b.BookingID, relErr))
				}
			}()
		}
	}

	applied, err := e.Store.ApplyTransition(ctx, b.Kind, b.BookingID, db.Transition{
		To:            m.to,
		AllowedFrom:   m.allowedFrom,
		PaymentID:     payment.ID,
		SetApprovedAt: m.setApprovedAt,
		SetCanceledAt: m.setCanceledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("apply transition: %w", err)
	}
	if !applied {
		// Someone else moved the booking between our read and write; their
		// transition won and ours no longer holds.
		e.Logger.Info("RECONCILE", fmt.Sprintf("transition for booking %s skipped, precondition no longer holds", b.BookingID))
		return &Result{Outcome: models.OutcomeProcessed, Detail: "precondition changed at write time"}, nil
	}

	e.Logger.LogBooking("TRANSITION", b.BookingID,
		fmt.Sprintf("%s/%s -> %s/%s (payment %s)", current.Status, current.PaymentStatus, m.to.Status, m.to.PaymentStatus, payment.ID))

	e.sideEffects(ctx, *b, m.to)
	return &Result{Outcome: models.OutcomeProcessed, Applied: true}, nil
}

// sideEffects runs the fire-and-forget consequences of an applied transition.
// Failures are logged, never retried and never fail the transition; they run
// at most once because the transition itself is guarded.
func (e *Engine) sideEffects(ctx context.Context, b models.Booking, to models.StatePair) {
	topic := ""
	switch to.Status {
	case models.BookingConfirmed:
		// Only a fresh confirmation notifies; a partial refund also lands on
		// confirmed but is not one.
		if to.PaymentStatus == models.PayApproved {
			topic = e.Topics.BookingConfirmed
		}
	case models.BookingCanceled:
		topic = e.Topics.BookingCanceled
	}

	if topic != "" && e.Kafka != nil {
		event := models.NotificationEvent{
			Type:          "booking." + string(to.Status),
			BookingID:     b.BookingID,
			Kind:          b.Kind,
			UserID:        b.UserID,
			AssetName:     b.AssetName,
			Status:        to.Status,
			PaymentStatus: to.PaymentStatus,
			Amount:        b.FinalAmount,
			Timestamp:     time.Now().UTC(),
		}
		value, _ := json.Marshal(event)
		if err := e.Kafka.Publish(topic, b.BookingID, value); err != nil {
			e.Logger.Error("KAFKA", fmt.Sprintf("failed to publish %s for booking %s: %v", topic, b.BookingID, err))
		} else {
			e.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("booking %s", b.BookingID))
		}
	}

	if to.Status == models.BookingConfirmed && to.PaymentStatus == models.PayApproved && e.Voucher != nil {
		b.Status = to.Status
		b.PaymentStatus = to.PaymentStatus
		qr, err := e.Voucher.GenerateEncryptedQR(b)
		if err != nil {
			e.Logger.Error("VOUCHER", fmt.Sprintf("failed to generate voucher for booking %s: %v", b.BookingID, err))
			return
		}
		if err := e.Store.SetVoucher(ctx, b.Kind, b.BookingID, qr); err != nil {
			e.Logger.Error("VOUCHER", fmt.Sprintf("failed to store voucher for booking %s: %v", b.BookingID, err))
		}
	}
}

func statusAllowed(s models.BookingStatus, allowed []models.BookingStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// conflicting reports whether applying the target over the current pair would
// contradict a terminal or refunded state rather than merely re-order events.
func conflicting(current models.StatePair, to models.StatePair) bool {
	if current.PaymentStatus == models.PayRefunded || current.PaymentStatus == models.PayPartiallyRefunded {
		return true
	}
	if current.Status.Terminal() && to.Status == models.BookingConfirmed {
		return true
	}
	if current.Status == models.BookingCanceled && to.Status == models.BookingCanceled {
		// e.g. refund event for a booking canceled through another path.
		return true
	}
	return false
}
