package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BookingKind discriminates the per-asset-type booking tables.
type BookingKind string

const (
	KindActivity   BookingKind = "activity"
	KindEvent      BookingKind = "event"
	KindRestaurant BookingKind = "restaurant"
	KindVehicle    BookingKind = "vehicle"
	KindPackage    BookingKind = "package"
)

// AllBookingKinds lists every kind the lookup layer dispatches over.
var AllBookingKinds = []BookingKind{KindActivity, KindEvent, KindRestaurant, KindVehicle, KindPackage}

func (k BookingKind) Valid() bool {
	switch k {
	case KindActivity, KindEvent, KindRestaurant, KindVehicle, KindPackage:
		return true
	}
	return false
}

// BookingStatus is the lifecycle stage of a booking. Once a booking reaches
// completed, canceled or expired no automatic transition touches it again.
type BookingStatus string

const (
	BookingDraft     BookingStatus = "draft"
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCanceled  BookingStatus = "canceled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
	BookingExpired   BookingStatus = "expired"
)

// Terminal reports whether automatic processing may still move the booking.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingCompleted, BookingCanceled, BookingExpired:
		return true
	}
	return false
}

// PaymentState is the payment sub-state tracked alongside the lifecycle status.
type PaymentState string

const (
	PayPending           PaymentState = "pending"
	PayProcessing        PaymentState = "processing"
	PayApproved          PaymentState = "approved"
	PayCanceled          PaymentState = "canceled"
	PayFailed            PaymentState = "failed"
	PayRefunded          PaymentState = "refunded"
	PayPartiallyRefunded PaymentState = "partially_refunded"
)

// BookingFields carries the lifecycle columns shared by every per-asset-type
// booking table. Each concrete booking struct embeds it so the store and the
// reconciliation engine can treat all kinds uniformly.
type BookingFields struct {
	BookingID     string        `bun:"booking_id,pk" json:"booking_id"`
	UserID        string        `bun:"user_id" json:"user_id"`
	AssetID       string        `bun:"asset_id" json:"asset_id"`
	AssetName     string        `bun:"asset_name" json:"asset_name"`
	Status        BookingStatus `bun:"status" json:"status"`
	PaymentStatus PaymentState  `bun:"payment_status" json:"payment_status"`
	TotalPrice    float64       `bun:"total_price" json:"total_price"`
	FinalAmount   float64       `bun:"final_amount" json:"final_amount"`

	// Provider linkage. ExternalReference correlates webhook payloads back to
	// this booking when table/kind are not otherwise inferable.
	PaymentID         string `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	PreferenceID      string `bun:"preference_id,nullzero" json:"preference_id,omitempty"`
	ExternalReference string `bun:"external_reference,nullzero" json:"external_reference,omitempty"`

	VoucherQR []byte `bun:"voucher_qr,nullzero,type:bytea" json:"-"`

	ScheduledFor time.Time  `bun:"scheduled_for" json:"scheduled_for"`
	CreatedAt    time.Time  `bun:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	ApprovedAt   *time.Time `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	CanceledAt   *time.Time `bun:"canceled_at,nullzero" json:"canceled_at,omitempty"`
}

type ActivityBooking struct {
	bun.BaseModel `bun:"table:activity_bookings"`
	BookingFields
}

type EventBooking struct {
	bun.BaseModel `bun:"table:event_bookings"`
	BookingFields
}

type RestaurantBooking struct {
	bun.BaseModel `bun:"table:restaurant_bookings"`
	BookingFields
}

type VehicleBooking struct {
	bun.BaseModel `bun:"table:vehicle_bookings"`
	BookingFields
}

type PackageBooking struct {
	bun.BaseModel `bun:"table:package_bookings"`
	BookingFields
}

// Booking is the normalized projection handed to callers that do not care
// which underlying table holds the record.
type Booking struct {
	Kind BookingKind `json:"kind"`
	BookingFields
}

// StatePair is a (status, payment status) pair, the unit the reconciliation
// engine compares and writes.
type StatePair struct {
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentState  `json:"payment_status"`
}

func (b *Booking) StatePair() StatePair {
	return StatePair{Status: b.Status, PaymentStatus: b.PaymentStatus}
}
