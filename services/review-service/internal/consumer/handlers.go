// Package consumer keeps review-service's tour replica current.
package consumer

import (
	"context"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/pkg/userban"
	"github.com/baechuer/tour-booking/services/review-service/internal/domain"
	"github.com/rs/zerolog"
)

type Deps struct {
	Tours replica.Store[domain.Tour]
	Bans  *userban.Store
	Log   zerolog.Logger
}

func Register(reg *events.Registry, d Deps) {
	log := d.Log.With().Str("component", "consumer").Logger()
	h := &handlers{tours: d.Tours, log: log}

	events.Handle(reg, events.TourCreatedTopic, h.tourCreated)
	events.Handle(reg, events.TourUpdatedTopic, h.tourUpdated)
	events.Handle(reg, events.TourDeletedTopic, h.tourDeleted)
	if d.Bans != nil {
		userban.Register(reg, d.Bans, log)
	}
}

type handlers struct {
	tours replica.Store[domain.Tour]
	log   zerolog.Logger
}

func (h *handlers) tourCreated(ctx context.Context, env events.Envelope[events.TourCreated]) broker.Result {
	p := env.Payload
	o, err := replica.Seed(ctx, h.tours, replica.Record[domain.Tour]{
		ID:       p.ID,
		Sequence: p.Sequence,
		Data:     domain.Tour{Name: p.Name},
	})
	h.logApply(string(env.Subject), env.MessageID, p.ID, p.Sequence, o, err)
	return replica.Decide(o, err)
}

func (h *handlers) tourUpdated(ctx context.Context, env events.Envelope[events.TourUpdated]) broker.Result {
	p := env.Payload
	o, err := replica.Advance(ctx, h.tours, p.ID, p.Sequence, func(t domain.Tour) (domain.Tour, error) {
		t.Name = p.Name
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
