package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	dbgen "github.com/noah-isme/backend-tours/internal/db/gen"
)

// Publisher is the subset of *amqp.Channel used by AMQPNotifier.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ExchangeDeclarer is implemented by *amqp.Channel.
type ExchangeDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

// AMQPNotifier forwards domain events to a topic exchange, routed by topic.
type AMQPNotifier struct {
	Publisher Publisher
	Exchange  string
	Sender    string
	Topics    []string
}

// DeclareExchange declares the durable topic exchange used for booking events.
func DeclareExchange(ch ExchangeDeclarer, name string) error {
	if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("events: declare exchange %q: %w", name, err)
	}
	return nil
}

func (n AMQPNotifier) Notify(_ context.Context, ev dbgen.DomainEvent) error {
	if n.Publisher == nil {
		return errors.New("events: amqp publisher not configured")
	}
	if !n.accepts(ev.Topic) {
		return nil
	}
	ts := time.Now().UTC()
	if ev.OccurredAt.Valid {
		ts = ev.OccurredAt.Time.UTC()
	}
	headers := amqp.Table{"topic": ev.Topic}
	if ev.ID.Valid {
		headers["event_id"] = uuid.UUID(ev.ID.Bytes).String()
	}
	if ev.AggregateID.Valid {
		headers["aggregate_id"] = uuid.UUID(ev.AggregateID.Bytes).String()
	}
	if n.Sender != "" {
		headers["sender_id"] = n.Sender
	}
	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         ev.Payload,
		Timestamp:    ts,
		Headers:      headers,
	}
	if id, ok := headers["event_id"].(string); ok {
		msg.MessageId = id
	}
	if err := n.Publisher.Publish(n.Exchange, ev.Topic, false, false, msg); err != nil {
		return fmt.Errorf("publish %s to %q: %w", ev.Topic, n.Exchange, err)
	}
	return nil
}

func (n AMQPNotifier) accepts(topic string) bool {
	if len(n.Topics) == 0 {
		return true
	}
	for _, t := range n.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
