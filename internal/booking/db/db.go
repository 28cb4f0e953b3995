package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// tableFor maps a booking kind to its table. Each asset type keeps its own
// table; every table shares the lifecycle columns in models.BookingFields.
var tableFor = map[models.BookingKind]string{
	models.KindActivity:   "activity_bookings",
	models.KindEvent:      "event_bookings",
	models.KindRestaurant: "restaurant_bookings",
	models.KindVehicle:    "vehicle_bookings",
	models.KindPackage:    "package_bookings",
}

var ErrUnknownKind = errors.New("unknown booking kind")

type DB struct {
	Bun *bun.DB
}

// Transition describes one conditional status write. AllowedFrom is checked at
// write time, not scan time, so a transition whose precondition no longer
// holds is skipped instead of forced.
type Transition struct {
	To          models.StatePair
	AllowedFrom []models.BookingStatus

	// Optional columns written together with the state pair.
	PaymentID     string
	SetApprovedAt bool
	SetCanceledAt bool
}

// GetBooking fetches one booking by kind and id. Returns (nil, nil) when the
// row does not exist: callers treat that as "cannot reconcile, skip".
func (d *DB) GetBooking(ctx context.Context, kind models.BookingKind, id string) (*models.Booking, error) {
	table, ok := tableFor[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	var fields models.BookingFields
	err := d.Bun.NewSelect().
		Table(table).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx, &fields)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.Booking{Kind: kind, BookingFields: fields}, nil
}

// FindByExternalReference scans every booking table for the given external
// reference. Used when a webhook payload carries no kind hint.
func (d *DB) FindByExternalReference(ctx context.Context, ref string) (*models.Booking, error) {
	for _, kind := range models.AllBookingKinds {
		var fields models.BookingFields
		err := d.Bun.NewSelect().
			Table(tableFor[kind]).
			Where("external_reference = ?", ref).
			Limit(1).
			Scan(ctx, &fields)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &models.Booking{Kind: kind, BookingFields: fields}, nil
	}
	return nil, nil
}

// CreateBooking inserts a new booking row into the kind's table.
func (d *DB) CreateBooking(ctx context.Context, kind models.BookingKind, fields models.BookingFields) error {
	model, err := emptyModel(kind)
	if err != nil {
		return err
	}
	setFields(model, fields)
	_, err = d.Bun.NewInsert().Model(model).Exec(ctx)
	return err
}

// ApplyTransition performs the conditional status update. It reports whether
// the write actually happened; zero rows affected means the precondition no
// longer held and the transition was skipped.
func (d *DB) ApplyTransition(ctx context.Context, kind models.BookingKind, id string, tr Transition) (bool, error) {
	table, ok := tableFor[kind]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if len(tr.AllowedFrom) == 0 {
		return false, errors.New("transition requires at least one allowed source status")
	}

	now := time.Now().UTC()
	q := d.Bun.NewUpdate().
		Table(table).
		Set("status = ?", tr.To.Status).
		Set("payment_status = ?", tr.To.PaymentStatus).
		Set("updated_at = ?", now).
		Where("booking_id = ?", id).
		Where("status IN (?)", bun.In(tr.AllowedFrom))

	if tr.PaymentID != "" {
		q = q.Set("payment_id = ?", tr.PaymentID)
	}
	if tr.SetApprovedAt {
		q = q.Set("approved_at = ?", now)
	}
	if tr.SetCanceledAt {
		q = q.Set("canceled_at = ?", now)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// AttachPreference stores the provider preference id and external reference on
// a booking that has not yet paid. A retried checkout on a booking that
// already moved on is a no-op.
func (d *DB) AttachPreference(ctx context.Context, kind models.BookingKind, id, preferenceID, externalRef string) (bool, error) {
	table, ok := tableFor[kind]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	res, err := d.Bun.NewUpdate().
		Table(table).
		Set("preference_id = ?", preferenceID).
		Set("external_reference = ?", externalRef).
		Set("updated_at = ?", time.Now().UTC()).
		Where("booking_id = ?", id).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingDraft, models.BookingPending})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetVoucher stores the generated voucher QR on a confirmed booking.
func (d *DB) SetVoucher(ctx context.Context, kind models.BookingKind, id string, qr []byte) error {
	table, ok := tableFor[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	_, err := d.Bun.NewUpdate().
		Table(table).
		Set("voucher_qr = ?", qr).
		Where("booking_id = ?", id).
		Exec(ctx)
	return err
}

// ---------------- JOB SCANS ----------------

// ListExpirableDrafts returns draft/pending bookings created before the cutoff
// that never saw an approved payment, across every kind.
func (d *DB) ListExpirableDrafts(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	return d.scanAll(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingDraft, models.BookingPending})).
			Where("payment_status NOT IN (?)", bun.In([]models.PaymentState{models.PayApproved})).
			Where("created_at < ?", cutoff)
	})
}

// ListCompletable returns confirmed bookings whose asset date has passed.
func (d *DB) ListCompletable(ctx context.Context, now time.Time) ([]models.Booking, error) {
	return d.scanAll(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("status = ?", models.BookingConfirmed).
			Where("scheduled_for < ?", now)
	})
}

// ListNoShowCandidates returns confirmed bookings whose asset date passed more
// than a day ago and that were never completed by the hourly job.
func (d *DB) ListNoShowCandidates(ctx context.Context, now time.Time) ([]models.Booking, error) {
	cutoff := now.Add(-24 * time.Hour)
	return d.scanAll(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("status = ?", models.BookingConfirmed).
			Where("scheduled_for < ?", cutoff)
	})
}

func (d *DB) scanAll(ctx context.Context, filter func(*bun.SelectQuery) *bun.SelectQuery) ([]models.Booking, error) {
	var out []models.Booking
	for _, kind := range models.AllBookingKinds {
		var rows []models.BookingFields
		q := d.Bun.NewSelect().Table(tableFor[kind])
		err := filter(q).Order("created_at ASC").Scan(ctx, &rows)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scan %s: %w", tableFor[kind], err)
		}
		for _, f := range rows {
			out = append(out, models.Booking{Kind: kind, BookingFields: f})
		}
	}
	return out, nil
}

func emptyModel(kind models.BookingKind) (interface{}, error) {
	switch kind {
	case models.KindActivity:
		return &models.ActivityBooking{}, nil
	case models.KindEvent:
		return &models.EventBooking{}, nil
	case models.KindRestaurant:
		return &models.RestaurantBooking{}, nil
	case models.KindVehicle:
		return &models.VehicleBooking{}, nil
	case models.KindPackage:
		return &models.PackageBooking{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

func setFields(model interface{}, fields models.BookingFields) {
	switch m := model.(type) {
	case *models.ActivityBooking:
		m.BookingFields = fields
	case *models.EventBooking:
		m.BookingFields = fields
	case *models.RestaurantBooking:
		m.BookingFields = fields
	case *models.VehicleBooking:
		m.BookingFields = fields
	case *models.PackageBooking:
		m.BookingFields = fields
	}
}
