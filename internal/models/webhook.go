package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// WebhookNotification is the inbound Mercado Pago callback body.
type WebhookNotification struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Action      string `json:"action"`
	APIVersion  string `json:"api_version,omitempty"`
	LiveMode    bool   `json:"live_mode"`
	UserID      int64  `json:"user_id,omitempty"`
	DateCreated string `json:"date_created,omitempty"`
	Data        struct {
		ID string `json:"id"`
	} `json:"data"`
}

// EventOutcome records how a ledger entry was resolved.
type EventOutcome string

const (
	OutcomeProcessed EventOutcome = "processed"
	OutcomeUnmatched EventOutcome = "unmatched"
	OutcomeConflict  EventOutcome = "conflict"
	OutcomeFailed    EventOutcome = "failed"
	OutcomeIgnored   EventOutcome = "ignored"
)

// WebhookEvent is one idempotency-ledger entry. At most one row exists per
// provider event id; existence is the sole dedup gate. Rows are never updated
// after insert.
type WebhookEvent struct {
	bun.BaseModel `bun:"table:webhook_events"`

	ID         string          `bun:"id,pk" json:"id"`
	Provider   string          `bun:"provider" json:"provider"`
	MPEventID  string          `bun:"mp_event_id,unique" json:"mp_event_id"`
	EventType  string          `bun:"event_type" json:"event_type"`
	PaymentID  string          `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	Payload    json.RawMessage `bun:"payload,type:jsonb" json:"payload"`
	Outcome    EventOutcome    `bun:"outcome" json:"outcome"`
	Detail     string          `bun:"detail,nullzero" json:"detail,omitempty"`
	ReceivedAt time.Time       `bun:"received_at" json:"received_at"`
}

// NotificationEvent is the fire-and-forget side-effect payload published to
// Kafka when a reconciliation transition applies.
type NotificationEvent struct {
	Type          string        `json:"type"`
	BookingID     string        `json:"booking_id"`
	Kind          BookingKind   `json:"kind"`
	UserID        string        `json:"user_id"`
	AssetName     string        `json:"asset_name"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentState  `json:"payment_status"`
	Amount        float64       `json:"amount"`
	Timestamp     time.Time     `json:"timestamp"`
}
