// Package consumer keeps tour-service's booking and review replicas current
// and folds them into each tour's derived fields.
package consumer

import (
	"context"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/pkg/userban"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
	"github.com/rs/zerolog"
)

type Deps struct {
	Bookings   replica.Store[domain.BookingRef]
	Reviews    replica.Store[domain.ReviewRef]
	Aggregates domain.Aggregates
	Bans       *userban.Store
	Log        zerolog.Logger
}

func Register(reg *events.Registry, d Deps) {
	log := d.Log.With().Str("component", "consumer").Logger()
	h := &handlers{bookings: d.Bookings, reviews: d.Reviews, agg: d.Aggregates, log: log}

	events.Handle(reg, events.BookingMadeTopic, h.bookingMade)
	events.Handle(reg, events.BookingCancelledTopic, func(ctx context.Context, env events.Envelope[events.BookingCancelled]) broker.Result {
		p := env.Payload
		return h.bookingStatus(ctx, string(env.Subject), env.MessageID, p.ID, p.Tour.ID, p.Sequence, "cancelled")
	})
	events.Handle(reg, events.BookingCompletedTopic, func(ctx context.Context, env events.Envelope[events.BookingCompleted]) broker.Result {
		p := env.Payload
		return h.bookingStatus(ctx, string(env.Subject), env.MessageID, p.ID, p.Tour.ID, p.Sequence, "completed")
	})

	events.Handle(reg, events.ReviewCreatedTopic, h.reviewCreated)
	events.Handle(reg, events.ReviewUpdatedTopic, h.reviewUpdated)
	events.Handle(reg, events.ReviewDeletedTopic, h.reviewDeleted)

	if d.Bans != nil {
		userban.Register(reg, d.Bans, log)
	}
}

type handlers struct {
	bookings replica.Store[domain.BookingRef]
	reviews  replica.Store[domain.ReviewRef]
	agg      domain.Aggregates
	log      zerolog.Logger
}

func (h *handlers) bookingMade(ctx context.Context, env events.Envelope[events.BookingMade]) broker.Result {
	p := env.Payload
	o, err := replica.Seed(ctx, h.bookings, replica.Record[domain.BookingRef]{
		ID:       p.ID,
		Sequence: p.Sequence,
		Data:     domain.BookingRef{TourID: p.Tour.ID, Status: p.Status},
	})
	return h.settle(ctx, "booking", string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err, func() error {
		return h.agg.RecomputeBooking(ctx, p.Tour.ID)
	})
}

func (h *handlers) bookingStatus(ctx context.Context, subject, messageID, id, tourID string, seq int64, status string) broker.Result {
	o, err := replica.Advance(ctx, h.bookings, id, seq, func(b domain.BookingRef) (domain.BookingRef, error) {
		b.Status = status
		return b, nil
	})
	return h.settle(ctx, "booking", subject, messageID, id, seq, o, err, func() error {
		if tourID == "" {
			rec, err := h.bookings.Get(ctx, id)
			if err != nil {
				return err
			}
			tourID = rec.Data.TourID
		}
		return h.agg.RecomputeBooking(ctx, tourID)
	})
}

func (h *handlers) reviewCreated(ctx context.Context, env events.Envelope[events.ReviewCreated]) broker.Result {
	p := env.Payload
	o, err := replica.Seed(ctx, h.reviews, replica.Record[domain.ReviewRef]{
		ID:       p.ID,
		Sequence: p.Sequence,
		Data:     domain.ReviewRef{TourID: p.TourID, Rating: p.Rating},
	})
	return h.settle(ctx, "review", string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err, func() error {
		return h.agg.RecomputeRatings(ctx, p.TourID)
	})
}

func (h *handlers) reviewUpdated(ctx context.Context, env events.Envelope[events.ReviewUpdated]) broker.Result {
	p := env.Payload
	o, err := replica.Advance(ctx, h.reviews, p.ID, p.Sequence, func(r domain.ReviewRef) (domain.ReviewRef, error) {
		r.Rating = p.Rating
		return r, nil
	})
	return h.settle(ctx, "review", string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err, func() error {
		return h.agg.RecomputeRatings(ctx, p.TourID)
	})
}

func (h *handlers) reviewDeleted(ctx context.Context, env events.Envelope[events.ReviewDeleted]) broker.Result {
	p := env.Payload
	o, err := replica.Remove(ctx, h.reviews, p.ID, p.Sequence)
	return h.settle(ctx, "review", string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err, func() error {
		return h.agg.RecomputeRatings(ctx, p.TourID)
	})
}

// settle logs the apply outcome and, once the replica is at or past the
// event, refreshes the tour's derived fields. Duplicates recompute too, in
// case the earlier delivery stopped between the two writes.
func (h *handlers) settle(ctx context.Context, kind, subject, messageID, id string, seq int64, o replica.Outcome, err error, recompute func() error) broker.Result {
	if err == nil && o != replica.OutOfOrder {
		if rerr := recompute(); rerr != nil {
			err = fmt.Errorf("recompute %s aggregate: %w", kind, rerr)
		}
	}

	ev := h.log.Debug()
	switch {
	case err != nil:
		ev = h.log.Warn().Err(err)
	case o == replica.OutOfOrder:
		ev = h.log.Info()
	}
	ev.Str("subject", subject).
		Str("message_id", messageID).
		Str(kind+"_id", id).
		Int64("sequence", seq).
		Str("outcome", o.String()).
		Msg(kind + " replica")

	return replica.Decide(o, err)
}
