package booking

import (
	"context"
	"fmt"

	"ms-booking/internal/models"
)

// Projection is the normalized view of a booking handed to webhook processing
// and admin tooling, independent of which table holds the record.
type Projection struct {
	Kind          string  `json:"kind"`
	BookingID     string  `json:"booking_id"`
	UserID        string  `json:"user_id"`
	AssetName     string  `json:"asset_name"`
	Price         float64 `json:"price"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
}

// Lookup fetches a booking by external reference. A missing row and a booking
// whose linked asset is gone are both reported as (nil, nil): callers treat
// either as "cannot reconcile, skip", never as an error.
func (s *Service) Lookup(ctx context.Context, externalRef string) (*Projection, error) {
	b, err := s.ResolveBooking(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return &Projection{
		Kind:          string(b.Kind),
		BookingID:     b.BookingID,
		UserID:        b.UserID,
		AssetName:     b.AssetName,
		Price:         b.FinalAmount,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
	}, nil
}

// ResolveBooking is the raw form of Lookup used by the reconciliation engine,
// which needs the full record rather than the projection.
func (s *Service) ResolveBooking(ctx context.Context, externalRef string) (*models.Booking, error) {
	if kind, id, ok := ParseExternalReference(externalRef); ok {
		b, err := s.DB.GetBooking(ctx, kind, id)
		if err != nil {
			return nil, fmt.Errorf("lookup %s booking %s: %w", kind, id, err)
		}
		if b == nil || b.AssetName == "" {
			// Asset record gone out from under the booking; same treatment
			// as a missing booking.
			return nil, nil
		}
		return b, nil
	}

	// Reference not in our format: fall back to a table scan. Old bookings
	// created before the kind prefix was introduced still resolve this way.
	b, err := s.DB.FindByExternalReference(ctx, externalRef)
	if err != nil {
		return nil, fmt.Errorf("lookup by reference %q: %w", externalRef, err)
	}
	if b == nil || b.AssetName == "" {
		return nil, nil
	}
	return b, nil
}
