package models

import (
	"time"
)

// ProviderPaymentStatus is the raw status string Mercado Pago reports for a
// payment. The reconciliation engine maps these onto booking state.
type ProviderPaymentStatus string

const (
	MPStatusApproved    ProviderPaymentStatus = "approved"
	MPStatusPending     ProviderPaymentStatus = "pending"
	MPStatusInProcess   ProviderPaymentStatus = "in_process"
	MPStatusRejected    ProviderPaymentStatus = "rejected"
	MPStatusCancelled   ProviderPaymentStatus = "cancelled"
	MPStatusRefunded    ProviderPaymentStatus = "refunded"
	MPStatusChargedBack ProviderPaymentStatus = "charged_back"
)

// PaymentInfo is the normalized view of a provider payment, consumed by the
// reconciliation engine and the admin status query.
type PaymentInfo struct {
	ID                string                `json:"id"`
	Status            ProviderPaymentStatus `json:"status"`
	StatusDetail      string                `json:"status_detail"`
	Amount            float64               `json:"amount"`
	AmountRefunded    float64               `json:"amount_refunded,omitempty"`
	Currency          string                `json:"currency"`
	Captured          bool                  `json:"captured"`
	ExternalReference string                `json:"external_reference"`
	PayerEmail        string                `json:"payer_email,omitempty"`
	DateApproved      time.Time             `json:"date_approved,omitempty"`
}

// CheckoutPreference is the provider checkout session descriptor. Only the ids
// are persisted (on the booking); the URLs are handed to the client and dropped.
type CheckoutPreference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// PreferenceItem is one line item of a checkout preference request.
type PreferenceItem struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Currency  string  `json:"currency_id"`
}

// PreferencePayer is the payer contact info forwarded to the provider.
type PreferencePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// BackURLs are the redirect targets the provider sends the payer back to.
type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// PreferenceRequest is the narrow request the checkout resolver builds for the
// provider.
type PreferenceRequest struct {
	Items             []PreferenceItem  `json:"items"`
	Payer             *PreferencePayer  `json:"payer,omitempty"`
	BackURLs          BackURLs          `json:"back_urls"`
	ExternalReference string            `json:"external_reference"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	NotificationURL   string            `json:"notification_url,omitempty"`
}

// CheckoutResult is what the booking-creation flow receives back.
type CheckoutResult struct {
	PreferenceID string `json:"preference_id"`
	CheckoutURL  string `json:"checkout_url"`
}

// PaymentActionResult is the normalized payload returned by admin capture,
// cancel and refund actions.
type PaymentActionResult struct {
	PaymentID string                `json:"payment_id"`
	Action    string                `json:"action"`
	Status    ProviderPaymentStatus `json:"status"`
	Amount    float64               `json:"amount,omitempty"`
}
