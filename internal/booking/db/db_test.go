package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	// Create one table per booking kind
	tables := []interface{}{
		(*models.ActivityBooking)(nil),
		(*models.EventBooking)(nil),
		(*models.RestaurantBooking)(nil),
		(*models.VehicleBooking)(nil),
		(*models.PackageBooking)(nil),
	}
	for _, m := range tables {
		if _, err := bunDB.NewCreateTable().Model(m).Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func insertBooking(t *testing.T, store *db.DB, kind models.BookingKind, fields models.BookingFields) models.BookingFields {
	if fields.BookingID == "" {
		fields.BookingID = uuid.New().String()
	}
	if fields.CreatedAt.IsZero() {
		fields.CreatedAt = time.Now().UTC()
	}
	err := store.CreateBooking(context.Background(), kind, fields)
	assert.NoError(t, err)
	return fields
}

func TestGetBooking(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	fields := insertBooking(t, store, models.KindActivity, models.BookingFields{
		UserID:        "user123",
		AssetID:       "asset456",
		AssetName:     "City Walking Tour",
		Status:        models.BookingDraft,
		PaymentStatus: models.PayPending,
		TotalPrice:    150.0,
		FinalAmount:   150.0,
		ScheduledFor:  time.Now().Add(48 * time.Hour),
	})

	// Test case: Get existing booking
	b, err := store.GetBooking(context.Background(), models.KindActivity, fields.BookingID)
	assert.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, fields.BookingID, b.BookingID)
	assert.Equal(t, models.KindActivity, b.Kind)
	assert.Equal(t, models.BookingDraft, b.Status)

	// Test case: Get non-existent booking
	b, err = store.GetBooking(context.Background(), models.KindActivity, "non-existent")
	assert.NoError(t, err)
	assert.Nil(t, b)

	// Test case: Unknown kind
	_, err = store.GetBooking(context.Background(), models.BookingKind("cruise"), fields.BookingID)
	assert.ErrorIs(t, err, db.ErrUnknownKind)
}

func TestFindByExternalReference(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	fields := insertBooking(t, store, models.KindVehicle, models.BookingFields{
		UserID:            "user123",
		AssetID:           "car-9",
		AssetName:         "Compact Rental",
		Status:            models.BookingPending,
		PaymentStatus:     models.PayPending,
		ExternalReference: "vehicle:ref-abc",
		ScheduledFor:      time.Now().Add(24 * time.Hour),
	})

	b, err := store.FindByExternalReference(context.Background(), "vehicle:ref-abc")
	assert.NoError(t, err)
	assert.NotNil(t, b)
	assert.Equal(t, models.KindVehicle, b.Kind)
	assert.Equal(t, fields.BookingID, b.BookingID)

	b, err = store.FindByExternalReference(context.Background(), "no-such-ref")
	assert.NoError(t, err)
	assert.Nil(t, b)
}

func TestApplyTransitionConditional(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	fields := insertBooking(t, store, models.KindEvent, models.BookingFields{
		UserID:        "user123",
		AssetID:       "show-1",
		AssetName:     "Samba Night",
		Status:        models.BookingDraft,
		PaymentStatus: models.PayPending,
		ScheduledFor:  time.Now().Add(72 * time.Hour),
	})

	confirm := db.Transition{
		To:            models.StatePair{Status: models.BookingConfirmed, PaymentStatus: models.PayApproved},
		AllowedFrom:   []models.BookingStatus{models.BookingDraft, models.BookingPending},
		PaymentID:     "pay-77",
		SetApprovedAt: true,
	}

	// Test case: precondition holds, transition applies
	applied, err := store.ApplyTransition(context.Background(), models.KindEvent, fields.BookingID, confirm)
	assert.NoError(t, err)
	assert.True(t, applied)

	b, err := store.GetBooking(context.Background(), models.KindEvent, fields.BookingID)
	assert.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, models.PayApproved, b.PaymentStatus)
	assert.Equal(t, "pay-77", b.PaymentID)
	assert.NotNil(t, b.ApprovedAt)

	// Test case: same transition again, precondition no longer holds
	applied, err = store.ApplyTransition(context.Background(), models.KindEvent, fields.BookingID, confirm)
	assert.NoError(t, err)
	assert.False(t, applied)

	// Test case: transition with no allowed sources is rejected
	_, err = store.ApplyTransition(context.Background(), models.KindEvent, fields.BookingID, db.Transition{
		To: models.StatePair{Status: models.BookingCanceled, PaymentStatus: models.PayCanceled},
	})
	assert.Error(t, err)
}

func TestAttachPreference(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	fields := insertBooking(t, store, models.KindRestaurant, models.BookingFields{
		UserID:        "user123",
		AssetID:       "rest-5",
		AssetName:     "Churrascaria Prime",
		Status:        models.BookingDraft,
		PaymentStatus: models.PayPending,
		ScheduledFor:  time.Now().Add(24 * time.Hour),
	})

	// Test case: draft accepts a preference
	attached, err := store.AttachPreference(context.Background(), models.KindRestaurant, fields.BookingID, "pref-123", "restaurant:"+fields.BookingID)
	assert.NoError(t, err)
	assert.True(t, attached)

	b, err := store.GetBooking(context.Background(), models.KindRestaurant, fields.BookingID)
	assert.NoError(t, err)
	assert.Equal(t, "pref-123", b.PreferenceID)
	assert.Equal(t, "restaurant:"+fields.BookingID, b.ExternalReference)

	// Move the booking past payment, then try attaching again
	_, err = store.ApplyTransition(context.Background(), models.KindRestaurant, fields.BookingID, db.Transition{
		To:          models.StatePair{Status: models.BookingConfirmed, PaymentStatus: models.PayApproved},
		AllowedFrom: []models.BookingStatus{models.BookingDraft},
	})
	assert.NoError(t, err)

	attached, err = store.AttachPreference(context.Background(), models.KindRestaurant, fields.BookingID, "pref-456", "restaurant:"+fields.BookingID)
	assert.NoError(t, err)
	assert.False(t, attached)
}

func TestSetVoucher(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	fields := insertBooking(t, store, models.KindPackage, models.BookingFields{
		UserID:        "user123",
		AssetID:       "pkg-2",
		AssetName:     "Weekend Getaway",
		Status:        models.BookingConfirmed,
		PaymentStatus: models.PayApproved,
		ScheduledFor:  time.Now().Add(24 * time.Hour),
	})

	err := store.SetVoucher(context.Background(), models.KindPackage, fields.BookingID, []byte("qr-bytes"))
	assert.NoError(t, err)

	b, err := store.GetBooking(context.Background(), models.KindPackage, fields.BookingID)
	assert.NoError(t, err)
	assert.Equal(t, []byte("qr-bytes"), b.VoucherQR)
}

func TestListExpirableDrafts(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	now := time.Now().UTC()
	cutoff := now.Add(-30 * time.Minute)

	// Old draft: eligible
	old := insertBooking(t, store, models.KindActivity, models.BookingFields{
		UserID: "u1", AssetID: "a1", AssetName: "Old Draft",
		Status: models.BookingDraft, PaymentStatus: models.PayPending,
		CreatedAt: now.Add(-2 * time.Hour), ScheduledFor: now.Add(24 * time.Hour),
	})
	// Fresh draft: untouched
	insertBooking(t, store, models.KindActivity, models.BookingFields{
		UserID: "u1", AssetID: "a2", AssetName: "Fresh Draft",
		Status: models.BookingDraft, PaymentStatus: models.PayPending,
		CreatedAt: now.Add(-5 * time.Minute), ScheduledFor: now.Add(24 * time.Hour),
	})
	// Old but approved: never expired
	insertBooking(t, store, models.KindEvent, models.BookingFields{
		UserID: "u1", AssetID: "a3", AssetName: "Paid Pending",
		Status: models.BookingPending, PaymentStatus: models.PayApproved,
		CreatedAt: now.Add(-2 * time.Hour), ScheduledFor: now.Add(24 * time.Hour),
	})

	candidates, err := store.ListExpirableDrafts(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, old.BookingID, candidates[0].BookingID)
}

func TestListCompletableAndNoShowCandidates(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()

	now := time.Now().UTC()

	// Confirmed with a date that just passed: completable, not yet a no-show
	justPassed := insertBooking(t, store, models.KindActivity, models.BookingFields{
		UserID: "u1", AssetID: "a1", AssetName: "Yesterday Evening",
		Status: models.BookingConfirmed, PaymentStatus: models.PayApproved,
		CreatedAt: now.Add(-48 * time.Hour), ScheduledFor: now.Add(-2 * time.Hour),
	})
	// Confirmed with a date more than a day old: both completable and no-show
	longPassed := insertBooking(t, store, models.KindVehicle, models.BookingFields{
		UserID: "u1", AssetID: "a2", AssetName: "Last Week",
		Status: models.BookingConfirmed, PaymentStatus: models.PayApproved,
		CreatedAt: now.Add(-10 * 24 * time.Hour), ScheduledFor: now.Add(-5 * 24 * time.Hour),
	})
	// Confirmed in the future: neither
	insertBooking(t, store, models.KindEvent, models.BookingFields{
		UserID: "u1", AssetID: "a3", AssetName: "Next Month",
		Status: models.BookingConfirmed, PaymentStatus: models.PayApproved,
		CreatedAt: now, ScheduledFor: now.Add(30 * 24 * time.Hour),
	})

	completable, err := store.ListCompletable(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, completable, 2)

	noShows, err := store.ListNoShowCandidates(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, noShows, 1)
	assert.Equal(t, longPassed.BookingID, noShows[0].BookingID)

	// The hourly job completes the recent one; it must drop out of both scans
	applied, err := store.ApplyTransition(context.Background(), models.KindActivity, justPassed.BookingID, db.Transition{
		To:          models.StatePair{Status: models.BookingCompleted, PaymentStatus: models.PayApproved},
		AllowedFrom: []models.BookingStatus{models.BookingConfirmed},
	})
	assert.NoError(t, err)
	assert.True(t, applied)

	completable, err = store.ListCompletable(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, completable, 1)
	assert.Equal(t, longPassed.BookingID, completable[0].BookingID)
}
