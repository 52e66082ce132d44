package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/tablebook/internal/reservation/domain"
)

// OutboxPublisher stages events in the reservation_outbox table instead of
// publishing directly, so an event written alongside a booking survives a
// broker outage and is relayed later.
type OutboxPublisher struct {
	db      *sql.DB
	subject string
}

// NewOutboxPublisher builds a staging publisher over the given database.
func NewOutboxPublisher(db *sql.DB, subject string) *OutboxPublisher {
	if subject == "" {
		subject = "reservation.events"
	}
	return &OutboxPublisher{db: db, subject: subject}
}

// Publish satisfies domain.EventPublisher by inserting an outbox row.
func (p *OutboxPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO reservation_outbox (topic, payload, created_at) VALUES ($1, $2, $3)`,
		p.subject, payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("stage event: %w", err)
	}
	return nil
}
