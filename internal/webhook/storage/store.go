package storage

import (
	"ms-booking/internal/models"
)

// Store is the idempotency ledger. One row per provider event id; existence
// of a row is proof-of-processing and the sole dedup gate.
type Store interface {
	// GetEvent returns (nil, nil) when the event id was never seen.
	GetEvent(mpEventID string) (*models.WebhookEvent, error)
	SaveEvent(event *models.WebhookEvent) error

	// ListFailed feeds the admin re-trigger tooling.
	ListFailed(limit int) ([]*models.WebhookEvent, error)

	// UpdateOutcome rewrites a recorded entry after an admin re-trigger.
	UpdateOutcome(mpEventID string, outcome models.EventOutcome, detail string) error

	Close() error
	HealthCheck() error
}
