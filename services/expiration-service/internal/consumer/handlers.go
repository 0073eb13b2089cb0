package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/rs/zerolog"
)

var errMissingID = errors.New("booking:made payload has no id")

type Scheduler interface {
	ScheduleBooking(ctx context.Context, bookingID string, expiration time.Time, traceID string) (bool, error)
}

// Register subscribes the expiration service to booking:made.
func Register(reg *events.Registry, s Scheduler, log zerolog.Logger) {
	log = log.With().Str("component", "booking_made_consumer").Logger()

	events.Handle(reg, events.BookingMadeTopic, func(ctx context.Context, env events.Envelope[events.BookingMade]) broker.Result {
		p := env.Payload
		if p.ID == "" {
			log.Error().Str("message_id", env.MessageID).Msg("booking:made without id")
			return broker.Reject(errMissingID)
		}

		added, err := s.ScheduleBooking(ctx, p.ID, p.Expiration, env.TraceID)
		if err != nil {
			log.Warn().Err(err).
				Str("message_id", env.MessageID).
				Str("booking_id", p.ID).
				Msg("schedule expiration failed")
			return broker.Retry(err)
		}

		log.Debug().
			Str("subject", string(env.Subject)).
			Str("message_id", env.MessageID).
			Str("booking_id", p.ID).
			Time("expiration", p.Expiration).
			Bool("scheduled", added).
			Msg("expiration armed")
		return broker.Ack()
	})
}
