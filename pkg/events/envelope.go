package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/google/uuid"
)

const SchemaVersion = 1

var ErrSubjectMismatch = errors.New("events: envelope subject does not match topic")

// Envelope is the wire format of every domain event.
type Envelope[T any] struct {
	Subject       Subject   `json:"subject"`
	MessageID     string    `json:"message_id"`
	SchemaVersion int       `json:"schema_version"`
	Producer      string    `json:"producer"`
	TraceID       string    `json:"trace_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       T         `json:"payload"`
}

type Meta struct {
	Producer   string
	TraceID    string
	OccurredAt time.Time
}

// Outgoing is an encoded envelope ready for the broker or the outbox.
type Outgoing struct {
	MessageID string
	Subject   Subject
	Body      []byte
}

// Topic binds a subject to its payload type.
type Topic[T any] struct {
	Subject Subject
}

func (t Topic[T]) Encode(payload T, meta Meta) (Outgoing, error) {
	at := meta.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	env := Envelope[T]{
		Subject:       t.Subject,
		MessageID:     uuid.NewString(),
		SchemaVersion: SchemaVersion,
		Producer:      meta.Producer,
		TraceID:       meta.TraceID,
		OccurredAt:    at.UTC(),
		Payload:       payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Outgoing{}, fmt.Errorf("encode %s: %w", t.Subject, err)
	}
	return Outgoing{MessageID: env.MessageID, Subject: t.Subject, Body: body}, nil
}

func (t Topic[T]) Decode(body []byte) (Envelope[T], error) {
	var env Envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope[T]{}, fmt.Errorf("decode %s: %w", t.Subject, err)
	}
	if env.Subject != "" && env.Subject != t.Subject {
		return Envelope[T]{}, fmt.Errorf("%w: got %q want %q", ErrSubjectMismatch, env.Subject, t.Subject)
	}
	return env, nil
}

// Publisher publishes one event type straight to the broker. Services that
// commit local state before publishing stage events in the outbox instead.
type Publisher[T any] struct {
	topic    Topic[T]
	pub      broker.Publisher
	producer string
}

func NewPublisher[T any](pub broker.Publisher, topic Topic[T], producer string) *Publisher[T] {
	return &Publisher[T]{topic: topic, pub: pub, producer: producer}
}

func (p *Publisher[T]) Publish(ctx context.Context, payload T, traceID string) (Outgoing, error) {
	out, err := p.topic.Encode(payload, Meta{Producer: p.producer, TraceID: traceID})
	if err != nil {
		return Outgoing{}, err
	}
	if err := p.pub.Publish(ctx, string(out.Subject), out.MessageID, out.Body); err != nil {
		return Outgoing{}, fmt.Errorf("publish %s: %w", out.Subject, err)
	}
	return out, nil
}
