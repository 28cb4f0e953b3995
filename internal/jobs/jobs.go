package jobs

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

// Store is the slice of the booking store the housekeeping jobs need.
type Store interface {
	ListExpirableDrafts(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	ListCompletable(ctx context.Context, now time.Time) ([]models.Booking, error)
	ListNoShowCandidates(ctx context.Context, now time.Time) ([]models.Booking, error)
	ApplyTransition(ctx context.Context, kind models.BookingKind, id string, tr db.Transition) (bool, error)
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

// Locker is the per-booking mutation lock shared with the reconciliation
// engine. A contested lock means a webhook is mutating the booking right now;
// the jobs defer and let the next tick rescan.
type Locker interface {
	Acquire(ctx context.Context, kind models.BookingKind, bookingID, owner string) (bool, error)
	Release(ctx context.Context, kind models.BookingKind, bookingID, owner string) error
}

// Jobs holds the three time-driven housekeeping passes. Each pass is a bulk
// scan followed by one conditional transition per record, so an overlapping
// run or a racing webhook simply makes the write a no-op.
type Jobs struct {
	Store    Store
	Kafka    Publisher
	Lock     Locker
	Topics   config.TopicConfig
	DraftTTL time.Duration
	Logger   *logger.Logger
	now      func() time.Time
}

func New(store Store, kafka Publisher, lock Locker, topics config.TopicConfig, draftTTL time.Duration, log *logger.Logger) *Jobs {
	return &Jobs{
		Store:    store,
		Kafka:    kafka,
		Lock:     lock,
		Topics:   topics,
		DraftTTL: draftTTL,
		Logger:   log,
		now:      time.Now,
	}
}

// ExpireDraftBookings moves abandoned draft and pending bookings past the TTL
// to expired. A booking that picked up an approved payment between the scan
// and the write is skipped by the status guard.
func (j *Jobs) ExpireDraftBookings(ctx context.Context) (int, error) {
	now := j.now().UTC()
	candidates, err := j.Store.ListExpirableDrafts(ctx, now.Add(-j.DraftTTL))
	if err != nil {
		return 0, fmt.Errorf("scan expirable drafts: %w", err)
	}

	tr := db.Transition{
		To:          models.StatePair{Status: models.BookingExpired, PaymentStatus: models.PayCanceled},
		AllowedFrom: []models.BookingStatus{models.BookingDraft, models.BookingPending},
	}
	return j.applyAll(ctx, "expire-draft-bookings", candidates, tr, j.Topics.BookingExpired)
}

// UpdateBookingStatuses promotes confirmed bookings whose asset date has
// passed to completed. Completion is the default outcome for a confirmed
// booking absent contrary evidence.
func (j *Jobs) UpdateBookingStatuses(ctx context.Context) (int, error) {
	candidates, err := j.Store.ListCompletable(ctx, j.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("scan completable bookings: %w", err)
	}

	tr := db.Transition{
		To:          models.StatePair{Status: models.BookingCompleted, PaymentStatus: models.PayApproved},
		AllowedFrom: []models.BookingStatus{models.BookingConfirmed},
	}
	return j.applyAll(ctx, "update-booking-statuses", candidates, tr, j.Topics.BookingCompleted)
}

// MarkNoShows flags confirmed bookings whose date passed more than a day ago
// and which the hourly promotion never completed.
func (j *Jobs) MarkNoShows(ctx context.Context) (int, error) {
	candidates, err := j.Store.ListNoShowCandidates(ctx, j.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("scan no-show candidates: %w", err)
	}

	tr := db.Transition{
		To:          models.StatePair{Status: models.BookingNoShow, PaymentStatus: models.PayApproved},
		AllowedFrom: []models.BookingStatus{models.BookingConfirmed},
	}
	return j.applyAll(ctx, "mark-no-shows", candidates, tr, j.Topics.BookingNoShow)
}

// applyAll runs one conditional transition per candidate. A single failed
// record never aborts the pass; the next tick rescans whatever was missed.
func (j *Jobs) applyAll(ctx context.Context, jobName string, candidates []models.Booking, tr db.Transition, topic string) (int, error) {
	owner := "job:" + jobName
	applied := 0
	for _, b := range candidates {
		locked := false
		if j.Lock != nil {
			got, lockErr := j.Lock.Acquire(ctx, b.Kind, b.BookingID, owner)
			if lockErr != nil {
				// Lock is contention reduction only; the conditional update
				// below stays the correctness mechanism.
				j.Logger.Warn("JOBS", fmt.Sprintf("%s: lock acquire failed for %s/%s: %v", jobName, b.Kind, b.BookingID, lockErr))
			} else if !got {
				// A webhook holds the booking; the next tick rescans it.
				continue
			} else {
				locked = true
			}
		}

		ok, err := j.Store.ApplyTransition(ctx, b.Kind, b.BookingID, tr)
		if locked {
			if relErr := j.Lock.Release(ctx, b.Kind, b.BookingID, owner); relErr != nil {
				j.Logger.Warn("JOBS", fmt.Sprintf("%s: lock release failed for %s/%s: %v", jobName, b.Kind, b.BookingID, relErr))
			}
		}
		if err != nil {
			j.Logger.Error("JOBS", fmt.Sprintf("%s: transition failed for %s/%s: %v", jobName, b.Kind, b.BookingID, err))
			continue
		}
		if !ok {
			// Status moved between scan and write, nothing to do.
			continue
		}
		applied++
		j.publish(topic, b, tr.To)
	}

	if len(candidates) > 0 || applied > 0 {
		j.Logger.LogJob(jobName, fmt.Sprintf("applied %d of %d candidate transitions", applied, len(candidates)))
	}
	return applied, nil
}

func (j *Jobs) publish(topic string, b models.Booking, to models.StatePair) {
	if j.Kafka == nil || topic == "" {
		return
	}
	event := models.NotificationEvent{
		Type:          "booking." + string(to.Status),
		BookingID:     b.BookingID,
		Kind:          b.Kind,
		UserID:        b.UserID,
		AssetName:     b.AssetName,
		Status:        to.Status,
		PaymentStatus: to.PaymentStatus,
		Amount:        b.FinalAmount,
		Timestamp:     j.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		j.Logger.Error("JOBS", fmt.Sprintf("failed to marshal notification for %s: %v", b.BookingID, err))
		return
	}
	if err := j.Kafka.Publish(topic, b.BookingID, payload); err != nil {
		j.Logger.LogKafka("publish", topic, fmt.Sprintf("notification for %s failed: %v", b.BookingID, err))
	}
}
