// Package consumer wires booking-service's event subscriptions.
package consumer

import (
	"context"
	"errors"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/pkg/userban"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
	"github.com/rs/zerolog"
)

type Saga interface {
	Complete(ctx context.Context, bookingID string) (bool, error)
	Expire(ctx context.Context, bookingID string) (bool, error)
}

type Deps struct {
	Saga  Saga
	Tours replica.Store[domain.Tour]
	Bans  *userban.Store
	Log   zerolog.Logger
}

// Register adds every booking-service subscriber to reg.
func Register(reg *events.Registry, d Deps) {
	log := d.Log.With().Str("component", "consumer").Logger()
	h := &handlers{saga: d.Saga, tours: d.Tours, log: log}

	events.Handle(reg, events.TourCreatedTopic, h.tourCreated)
	events.Handle(reg, events.TourUpdatedTopic, h.tourUpdated)
	events.Handle(reg, events.TourDeletedTopic, h.tourDeleted)
	events.Handle(reg, events.PaymentMadeTopic, h.paymentMade)
	events.Handle(reg, events.ExpirationCompletedTopic, h.expirationCompleted)
	if d.Bans != nil {
		userban.Register(reg, d.Bans, log)
	}
}

type handlers struct {
	saga  Saga
	tours replica.Store[domain.Tour]
	log   zerolog.Logger
}

func (h *handlers) tourCreated(ctx context.Context, env events.Envelope[events.TourCreated]) broker.Result {
	p := env.Payload
	o, err := replica.Seed(ctx, h.tours, replica.Record[domain.Tour]{
		ID:       p.ID,
		Sequence: p.Sequence,
		Data:     domain.Tour{ID: p.ID, Name: p.Name, Price: p.Price},
	})
	h.logApply(string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err)
	return replica.Decide(o, err)
}

func (h *handlers) tourUpdated(ctx context.Context, env events.Envelope[events.TourUpdated]) broker.Result {
	p := env.Payload
	o, err := replica.Advance(ctx, h.tours, p.ID, p.Sequence, func(t domain.Tour) (domain.Tour, error) {
		t.Name = p.Name
		t.Price = p.Price
		return t, nil
	})
	h.logApply(string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err)
	return replica.Decide(o, err)
}

func (h *handlers) tourDeleted(ctx context.Context, env events.Envelope[events.TourDeleted]) broker.Result {
	p := env.Payload
	o, err := replica.Remove(ctx, h.tours, p.ID, p.Sequence)
	h.logApply(string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err)
	return replica.Decide(o, err)
}

func (h *handlers) paymentMade(ctx context.Context, env events.Envelope[events.PaymentMade]) broker.Result {
	changed, err := h.saga.Complete(ctx, env.Payload.BookingID)
	return h.sagaResult(string(env.Subject), env.MessageID, env.Payload.BookingID, changed, err)
}

func (h *handlers) expirationCompleted(ctx context.Context, env events.Envelope[events.ExpirationCompleted]) broker.Result {
	changed, err := h.saga.Expire(ctx, env.Payload.BookingID)
	return h.sagaResult(string(env.Subject), env.MessageID, env.Payload.BookingID, changed, err)
}

// sagaResult retries every failure: a missing booking is usually a
// BookingMade still in flight and a concurrent update is re-evaluated.
func (h *handlers) sagaResult(subject, messageID, bookingID string, changed bool, err error) broker.Result {
	ev := h.log.Info()
	switch {
	case err != nil:
		ev = h.log.Warn().Err(err).Bool("missing", errors.Is(err, domain.ErrBookingNotFound))
	case !changed:
		ev = h.log.Debug()
	}
	ev.Str("subject", subject).
		Str("message_id", messageID).
		Str("booking_id", bookingID).
		Bool("changed", changed).
		Msg("booking saga step")

	if err != nil {
		return broker.Retry(err)
	}
	return broker.Ack()
}

func (h *handlers) logApply(subject, messageID, id string, seq int64, o replica.Outcome, err error) {
	ev := h.log.Debug()
	switch {
	case err != nil:
		ev = h.log.Warn().Err(err)
	case o == replica.OutOfOrder:
		ev = h.log.Info()
	}
	ev.Str("subject", subject).
		Str("message_id", messageID).
		Str("tour_id", id).
		Int64("sequence", seq).
		Str("outcome", o.String()).
		Msg("tour replica")
}
