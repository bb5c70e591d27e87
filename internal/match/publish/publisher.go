// Package publish delivers match engine events to interested consumers.
package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is the envelope for one match engine event.
type Event struct {
	ID         uuid.UUID       `json:"event_id"`
	MatchID    uuid.UUID       `json:"match_id"`
	Type       string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent wraps a payload struct into an envelope. Marshal failures are
// programming errors in payload definitions and are logged, not returned.
func NewEvent(matchID uuid.UUID, eventType string, occurredAt time.Time, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
	}
	return Event{
		ID:         uuid.New(),
		MatchID:    matchID,
		Type:       eventType,
		OccurredAt: occurredAt,
		Payload:    raw,
	}
}

// Publisher fans match events out to a backend.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// LogPublisher writes events to the structured log. It is the default
// backend for single-process deployments and tests.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("match_id", event.MatchID.String()).
		Str("event_type", event.Type).
		RawJSON("payload", event.Payload).
		Msg("match event")
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
