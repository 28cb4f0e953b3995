package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-booking/internal/models"
)

// CheckoutRequest is what the booking-creation flow supplies to obtain a
// provider checkout URL for a draft booking.
type CheckoutRequest struct {
	BookingID   string             `json:"booking_id"`
	Kind        models.BookingKind `json:"kind"`
	Description string             `json:"description"`
	PayerName   string             `json:"payer_name,omitempty"`
	PayerEmail  string             `json:"payer_email,omitempty"`
}

var ErrNoCheckoutURL = errors.New("provider returned a preference with no usable checkout url")

// PickCheckoutURL decides which of the two candidate URLs to hand to the
// client. A preference id prefixed TEST- is unambiguously sandbox, so the
// sandbox URL wins there; everything else is production and the init point
// wins. Prefix inspection is the authoritative signal because the provider
// populates init_point even for some test preferences.
func PickCheckoutURL(pref models.CheckoutPreference) string {
	if strings.HasPrefix(pref.ID, "TEST-") {
		if pref.SandboxInitPoint != "" {
			return pref.SandboxInitPoint
		}
		return pref.InitPoint
	}
	if pref.InitPoint != "" {
		return pref.InitPoint
	}
	return pref.SandboxInitPoint
}

// CreateCheckout builds a provider preference for a draft booking and returns
// the checkout URL. On provider failure the booking keeps its draft status
// with no preference attached, so the user action is safely retryable.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*models.CheckoutResult, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("invalid booking kind %q", req.Kind)
	}

	b, err := s.DB.GetBooking(ctx, req.Kind, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("booking %s/%s not found", req.Kind, req.BookingID)
	}
	if b.Status != models.BookingDraft && b.Status != models.BookingPending {
		return nil, fmt.Errorf("booking %s is %s, checkout requires draft or pending", req.BookingID, b.Status)
	}

	title := req.Description
	if title == "" {
		title = b.AssetName
	}

	// The charged amount always comes from the stored booking. Clients never
	// get to name their own price, so the preference carries a single item at
	// the booking's final amount.
	ref := ExternalReference(req.Kind, req.BookingID)
	prefReq := models.PreferenceRequest{
		Items: []models.PreferenceItem{{
			Title:     title,
			Quantity:  1,
			UnitPrice: b.FinalAmount,
			Currency:  "BRL",
		}},
		BackURLs:          s.BackURLs,
		ExternalReference: ref,
		NotificationURL:   s.NotifyURL,
		Metadata: map[string]string{
			"booking_id": req.BookingID,
			"kind":       string(req.Kind),
		},
	}
	if req.PayerEmail != "" || req.PayerName != "" {
		prefReq.Payer = &models.PreferencePayer{Name: req.PayerName, Email: req.PayerEmail}
	}

	pref, err := s.Provider.CreatePreference(ctx, prefReq)
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("preference creation failed for booking %s: %v", req.BookingID, err))
		return nil, fmt.Errorf("create preference: %w", err)
	}

	url := PickCheckoutURL(*pref)
	if url == "" {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("preference %s has no checkout url", pref.ID))
		return nil, ErrNoCheckoutURL
	}

	attached, err := s.DB.AttachPreference(ctx, req.Kind, req.BookingID, pref.ID, ref)
	if err != nil {
		return nil, fmt.Errorf("attach preference: %w", err)
	}
	if !attached {
		// Booking moved out of draft between the load above and the write.
		return nil, fmt.Errorf("booking %s no longer accepts a checkout preference", req.BookingID)
	}

	s.Logger.Info("CHECKOUT", fmt.Sprintf("preference %s created for %s booking %s", pref.ID, req.Kind, req.BookingID))
	return &models.CheckoutResult{PreferenceID: pref.ID, CheckoutURL: url}, nil
}
