package api

import (
	"encoding/json"
	"net/http"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.Service
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req booking.DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Kind = models.BookingKind(chi.URLParam(r, "kind"))

	b, err := h.BookingService.CreateDraft(r.Context(), req)
	if err != nil {
		http.Error(w, "Could not create booking: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp := map[string]interface{}{
		"status":    "created",
		"bookingId": b.BookingID,
		"booking":   b,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	kind := models.BookingKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		http.Error(w, "Unknown booking kind", http.StatusBadRequest)
		return
	}

	b, err := h.BookingService.DB.GetBooking(r.Context(), kind, chi.URLParam(r, "bookingId"))
	if err != nil {
		http.Error(w, "Booking lookup failed", http.StatusInternalServerError)
		return
	}
	if b == nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

// Checkout creates a provider preference for a draft booking and returns the
// URL the client must redirect the payer to.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req booking.CheckoutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	req.Kind = models.BookingKind(chi.URLParam(r, "kind"))
	req.BookingID = chi.URLParam(r, "bookingId")

	result, err := h.BookingService.CreateCheckout(r.Context(), req)
	if err != nil {
		http.Error(w, "Failed to create checkout: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
