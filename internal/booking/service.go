package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	GetBooking(ctx context.Context, kind models.BookingKind, id string) (*models.Booking, error)
	FindByExternalReference(ctx context.Context, ref string) (*models.Booking, error)
	CreateBooking(ctx context.Context, kind models.BookingKind, fields models.BookingFields) error
	AttachPreference(ctx context.Context, kind models.BookingKind, id, preferenceID, externalRef string) (bool, error)
}

type PreferenceCreator interface {
	CreatePreference(ctx context.Context, req models.PreferenceRequest) (*models.CheckoutPreference, error)
}

type Service struct {
	DB        DBLayer
	Provider  PreferenceCreator
	BackURLs  models.BackURLs
	NotifyURL string
	Logger    *logger.Logger
}

func NewService(db DBLayer, provider PreferenceCreator, backURLs models.BackURLs, notifyURL string, log *logger.Logger) *Service {
	return &Service{
		DB:        db,
		Provider:  provider,
		BackURLs:  backURLs,
		NotifyURL: notifyURL,
		Logger:    log,
	}
}

// DraftRequest carries the fields a client supplies when opening a booking.
type DraftRequest struct {
	Kind         models.BookingKind `json:"kind"`
	UserID       string             `json:"user_id"`
	AssetID      string             `json:"asset_id"`
	AssetName    string             `json:"asset_name"`
	TotalPrice   float64            `json:"total_price"`
	ScheduledFor time.Time          `json:"scheduled_for"`
}

// CreateDraft opens a new booking in draft. The amount is fixed at creation;
// only an explicit admin override may change it afterwards.
func (s *Service) CreateDraft(ctx context.Context, req DraftRequest) (*models.Booking, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown booking kind %q", req.Kind)
	}
	// AssetName is required: reconciliation resolves bookings through it and
	// treats an empty name as a dangling asset reference.
	if req.UserID == "" || req.AssetID == "" || req.AssetName == "" {
		return nil, fmt.Errorf("user_id, asset_id and asset_name are required")
	}
	if req.TotalPrice < 0 {
		return nil, fmt.Errorf("total_price cannot be negative")
	}

	now := time.Now().UTC()
	fields := models.BookingFields{
		BookingID:     uuid.NewString(),
		UserID:        req.UserID,
		AssetID:       req.AssetID,
		AssetName:     req.AssetName,
		Status:        models.BookingDraft,
		PaymentStatus: models.PayPending,
		TotalPrice:    req.TotalPrice,
		FinalAmount:   req.TotalPrice,
		ScheduledFor:  req.ScheduledFor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	fields.ExternalReference = ExternalReference(req.Kind, fields.BookingID)

	if err := s.DB.CreateBooking(ctx, req.Kind, fields); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.Logger.LogBooking("create", fields.BookingID, fmt.Sprintf("draft %s booking for user %s", req.Kind, req.UserID))
	return &models.Booking{Kind: req.Kind, BookingFields: fields}, nil
}

// ExternalReference builds the correlation string stored on the booking and
// echoed back by the provider in payment payloads.
func ExternalReference(kind models.BookingKind, bookingID string) string {
	return fmt.Sprintf("%s:%s", kind, bookingID)
}

// ParseExternalReference splits a provider external reference back into kind
// and booking id. ok is false for anything this service did not mint.
func ParseExternalReference(ref string) (models.BookingKind, string, bool) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	kind := models.BookingKind(parts[0])
	if !kind.Valid() {
		return "", "", false
	}
	return kind, parts[1], true
}
