package storage

import (
	"database/sql"
	"fmt"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates the ledger store on an existing connection.
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize webhook ledger table: "+err.Error())
		return nil, fmt.Errorf("failed to initialize webhook ledger table: %w", err)
	}

	log.Info("DATABASE", "Webhook ledger storage initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "webhook_events", "Creating webhook_events table if not exists")

	query := `
    CREATE TABLE IF NOT EXISTS webhook_events (
        id VARCHAR(36) PRIMARY KEY,
        provider VARCHAR(20) NOT NULL,
        mp_event_id VARCHAR(191) NOT NULL,
        event_type VARCHAR(100) NOT NULL,
        payment_id VARCHAR(64),
        payload JSONB NOT NULL,
        outcome VARCHAR(20) NOT NULL,
        detail TEXT,
        received_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    `
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create webhook_events table: %w", err)
	}

	indexes := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_mp_event_id ON webhook_events(mp_event_id);",
		"CREATE INDEX IF NOT EXISTS idx_webhook_events_outcome ON webhook_events(outcome);",
		"CREATE INDEX IF NOT EXISTS idx_webhook_events_received_at ON webhook_events(received_at);",
	}
	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	s.log.LogDatabase("SUCCESS", "webhook_events", "Ledger table and indexes ready")
	return nil
}

// GetEvent looks up a ledger entry by provider event id.
func (s *PostgreSQLStore) GetEvent(mpEventID string) (*models.WebhookEvent, error) {
	query := `
    SELECT id, provider, mp_event_id, event_type, COALESCE(payment_id, ''), payload, outcome, COALESCE(detail, ''), received_at
    FROM webhook_events WHERE mp_event_id = $1
    `

	event := &models.WebhookEvent{}
	err := s.db.QueryRow(query, mpEventID).Scan(
		&event.ID, &event.Provider, &event.MPEventID, &event.EventType,
		&event.PaymentID, &event.Payload, &event.Outcome, &event.Detail, &event.ReceivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get webhook event %s: %s", mpEventID, err.Error()))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return event, nil
}

// SaveEvent records a processed event. Entries are insert-only; a concurrent
// duplicate insert loses the ON CONFLICT race and that is fine, the first
// writer's outcome stands.
func (s *PostgreSQLStore) SaveEvent(event *models.WebhookEvent) error {
	s.log.LogDatabase("INSERT", "webhook_events", fmt.Sprintf("Recording event %s (%s)", event.MPEventID, event.Outcome))

	query := `
    INSERT INTO webhook_events (id, provider, mp_event_id, event_type, payment_id, payload, outcome, detail, received_at)
    VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9)
    ON CONFLICT (mp_event_id) DO NOTHING
    `

	_, err := s.db.Exec(query,
		event.ID, event.Provider, event.MPEventID, event.EventType,
		event.PaymentID, []byte(event.Payload), event.Outcome, event.Detail, event.ReceivedAt,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save webhook event %s: %s", event.MPEventID, err.Error()))
		return fmt.Errorf("failed to save webhook event: %w", err)
	}
	return nil
}

// ListFailed returns the most recent entries recorded with a failed outcome.
func (s *PostgreSQLStore) ListFailed(limit int) ([]*models.WebhookEvent, error) {
	query := `
    SELECT id, provider, mp_event_id, event_type, COALESCE(payment_id, ''), payload, outcome, COALESCE(detail, ''), received_at
    FROM webhook_events
    WHERE outcome = $1
    ORDER BY received_at DESC
    LIMIT $2
    `

	rows, err := s.db.Query(query, models.OutcomeFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		event := &models.WebhookEvent{}
		err := rows.Scan(
			&event.ID, &event.Provider, &event.MPEventID, &event.EventType,
			&event.PaymentID, &event.Payload, &event.Outcome, &event.Detail, &event.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

// UpdateOutcome rewrites the outcome of an existing entry. Only the admin
// re-trigger path calls this; webhook ingestion never mutates recorded rows.
func (s *PostgreSQLStore) UpdateOutcome(mpEventID string, outcome models.EventOutcome, detail string) error {
	s.log.LogDatabase("UPDATE", "webhook_events", fmt.Sprintf("Rewriting outcome of %s to %s", mpEventID, outcome))

	query := `UPDATE webhook_events SET outcome = $2, detail = NULLIF($3, '') WHERE mp_event_id = $1`
	result, err := s.db.Exec(query, mpEventID, outcome, detail)
	if err != nil {
		return fmt.Errorf("failed to update webhook event outcome: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("webhook event %s not found", mpEventID)
	}
	return nil
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "webhook_events", "Closing ledger store")
	return s.db.Close()
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}
