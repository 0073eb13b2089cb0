// Package consumer keeps payment-service's booking replica current.
package consumer

import (
	"context"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/pkg/userban"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
	"github.com/rs/zerolog"
)

type Deps struct {
	Bookings replica.Store[domain.Booking]
	Bans     *userban.Store
	Log      zerolog.Logger
}

func Register(reg *events.Registry, d Deps) {
	log := d.Log.With().Str("component", "consumer").Logger()
	h := &handlers{bookings: d.Bookings, log: log}

	events.Handle(reg, events.BookingMadeTopic, h.bookingMade)
	events.Handle(reg, events.BookingCancelledTopic, func(ctx context.Context, env events.Envelope[events.BookingCancelled]) broker.Result {
		return h.setStatus(ctx, string(env.Subject), env.MessageID, env.Payload.ID, env.Payload.Sequence, domain.BookingCancelled)
	})
	events.Handle(reg, events.BookingCompletedTopic, func(ctx context.Context, env events.Envelope[events.BookingCompleted]) broker.Result {
		return h.setStatus(ctx, string(env.Subject), env.MessageID, env.Payload.ID, env.Payload.Sequence, domain.BookingCompleted)
	})
	if d.Bans != nil {
		userban.Register(reg, d.Bans, log)
	}
}

type handlers struct {
	bookings replica.Store[domain.Booking]
	log      zerolog.Logger
}

func (h *handlers) bookingMade(ctx context.Context, env events.Envelope[events.BookingMade]) broker.Result {
	p := env.Payload
	o, err := replica.Seed(ctx, h.bookings, replica.Record[domain.Booking]{
		ID:       p.ID,
		Sequence: p.Sequence,
		Data: domain.Booking{
			UserID:     p.UserID,
			TourID:     p.Tour.ID,
			Price:      p.Tour.Price,
			Status:     domain.BookingStatus(p.Status),
			Expiration: p.Expiration,
		},
	})
	h.logApply(string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err)
	return replica.Decide(o, err)
}

func (h *handlers) setStatus(ctx context.Context, subject, messageID, id string, seq int64, status domain.BookingStatus) broker.Result {
	o, err := replica.Advance(ctx, h.bookings, id, seq, func(b domain.Booking) (domain.Booking, error) {
		b.Status = status
		return b, nil
	})
	h.logApply(subject, messageID, id, seq, o, err)
	return replica.Decide(o, err)
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
		Str("booking_id", id).
		Int64("sequence", seq).
		Str("outcome", o.String()).
		Msg("booking replica")
}
