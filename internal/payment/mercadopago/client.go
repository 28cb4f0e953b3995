package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Client is the narrow surface of the Mercado Pago REST API this service
// touches: preference creation, payment reads, and the three admin actions.
type Client struct {
	cfg    config.MercadoPagoConfig
	http   *http.Client
	logger *logger.Logger
}

func NewClient(cfg config.MercadoPagoConfig, log *logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log,
	}
}

// APIError is a non-2xx answer from the provider. Transient (5xx) and client
// (4xx) failures both surface through it; callers decide retryability.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago: status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying from the user flow.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreatePreference creates a checkout preference and returns the id plus both
// candidate URLs. URL selection is the caller's concern.
func (c *Client) CreatePreference(ctx context.Context, req models.PreferenceRequest) (*models.CheckoutPreference, error) {
	var resp preferenceResponse
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", req, &resp); err != nil {
		return nil, err
	}
	return &models.CheckoutPreference{
		ID:               resp.ID,
		InitPoint:        resp.InitPoint,
		SandboxInitPoint: resp.SandboxInitPoint,
	}, nil
}

type paymentResponse struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	TransactionAmount float64 `json:"transaction_amount"`
	AmountRefunded    float64 `json:"transaction_amount_refunded"`
	CurrencyID        string  `json:"currency_id"`
	Captured          bool    `json:"captured"`
	ExternalReference string  `json:"external_reference"`
	DateApproved      string  `json:"date_approved"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

func (r paymentResponse) normalize() *models.PaymentInfo {
	info := &models.PaymentInfo{
		ID:                fmt.Sprintf("%d", r.ID),
		Status:            models.ProviderPaymentStatus(r.Status),
		StatusDetail:      r.StatusDetail,
		Amount:            r.TransactionAmount,
		AmountRefunded:    r.AmountRefunded,
		Currency:          r.CurrencyID,
		Captured:          r.Captured,
		ExternalReference: r.ExternalReference,
		PayerEmail:        r.Payer.Email,
	}
	if r.DateApproved != "" {
		if t, err := time.Parse(time.RFC3339, r.DateApproved); err == nil {
			info.DateApproved = t
		}
	}
	return info
}

// GetPayment fetches one payment and normalizes it.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*models.PaymentInfo, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.normalize(), nil
}

// CapturePayment captures a previously authorized payment. A nil amount
// captures the full authorized amount.
func (c *Client) CapturePayment(ctx context.Context, paymentID string, amount *float64) (*models.PaymentInfo, error) {
	body := map[string]interface{}{"capture": true}
	if amount != nil {
		body["transaction_amount"] = *amount
	}
	var resp paymentResponse
	if err := c.do(ctx, http.MethodPut, "/v1/payments/"+paymentID, body, &resp); err != nil {
		return nil, err
	}
	return resp.normalize(), nil
}

// CancelPayment cancels a pending/authorized payment.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*models.PaymentInfo, error) {
	body := map[string]interface{}{"status": "cancelled"}
	var resp paymentResponse
	if err := c.do(ctx, http.MethodPut, "/v1/payments/"+paymentID, body, &resp); err != nil {
		return nil, err
	}
	return resp.normalize(), nil
}

type refundResponse struct {
	ID     int64   `json:"id"`
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

// RefundPayment refunds an approved payment, partially when amount is non-nil.
func (c *Client) RefundPayment(ctx context.Context, paymentID string, amount *float64) (*models.PaymentActionResult, error) {
	var body interface{}
	if amount != nil {
		body = map[string]interface{}{"amount": *amount}
	}
	var resp refundResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payments/"+paymentID+"/refunds", body, &resp); err != nil {
		return nil, err
	}
	status := models.MPStatusRefunded
	if amount != nil {
		// Partial refunds leave the payment approved on the provider side;
		// the booking state mapping handles the distinction.
		status = models.ProviderPaymentStatus(resp.Status)
	}
	return &models.PaymentActionResult{
		PaymentID: paymentID,
		Action:    "refund",
		Status:    status,
		Amount:    resp.Amount,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mercadopago request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("MERCADOPAGO", fmt.Sprintf("%s %s -> %d", method, path, resp.StatusCode))
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
