// Package events stores booking outcomes in the domain_events table and
// forwards them to the message broker once the booking transaction commits.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
)

var (
	ErrNoTopic     = errors.New("events: topic is required")
	ErrNoAggregate = errors.New("events: aggregate id is required")
)

// EventStore is satisfied by *dbgen.Queries, including one bound to a tx.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error)
}

type Notifier interface {
	Notify(ctx context.Context, event dbgen.DomainEvent) error
}

type NotifierFunc func(ctx context.Context, event dbgen.DomainEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event dbgen.DomainEvent) error {
	return f(ctx, event)
}

// Bus splits event delivery in two steps. Record writes the row through the
// caller's store so it commits or rolls back with the booking; Publish runs
// after commit and never undoes the write.
type Bus struct {
	Notifiers []Notifier
	Logger    zerolog.Logger
}

func (b *Bus) Record(ctx context.Context, store EventStore, topic string, aggregateID pgtype.UUID, payload any) (dbgen.DomainEvent, error) {
	if store == nil {
		return dbgen.DomainEvent{}, errors.New("events: store not configured")
	}
	params, err := newParams(topic, aggregateID, payload)
	if err != nil {
		return dbgen.DomainEvent{}, err
	}
	ev, err := store.InsertDomainEvent(ctx, params)
	if err != nil {
		return dbgen.DomainEvent{}, fmt.Errorf("events: insert %s: %w", params.Topic, err)
	}
	return ev, nil
}

// Publish notifies every notifier, even after one fails. The joined error is
// logged and returned for callers that care.
func (b *Bus) Publish(ctx context.Context, ev dbgen.DomainEvent) error {
	if b == nil {
		return nil
	}
	var errs []error
	for _, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		b.Logger.Warn().Err(err).Str("topic", ev.Topic).Int("failed", len(errs)).Msg("event_publish_failed")
	}
	return err
}

func newParams(topic string, aggregateID pgtype.UUID, payload any) (dbgen.InsertDomainEventParams, error) {
	topic = strings.TrimSpace(topic)
	switch {
	case topic == "":
		return dbgen.InsertDomainEventParams{}, ErrNoTopic
	case !aggregateID.Valid:
		return dbgen.InsertDomainEventParams{}, ErrNoAggregate
	}
	body := []byte("{}")
	switch v := payload.(type) {
	case nil:
	case json.RawMessage:
		if len(v) > 0 {
			if !json.Valid(v) {
				return dbgen.InsertDomainEventParams{}, errors.New("events: payload is not valid json")
			}
			body = append([]byte(nil), v...)
		}
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return dbgen.InsertDomainEventParams{}, fmt.Errorf("events: encode payload: %w", err)
		}
		body = encoded
	}
	return dbgen.InsertDomainEventParams{Topic: topic, AggregateID: aggregateID, Payload: body}, nil
}
