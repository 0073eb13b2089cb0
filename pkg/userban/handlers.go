package userban

import (
	"context"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/rs/zerolog"
)

// Register adds the user:banned and user:unbanned subscribers to reg.
func Register(reg *events.Registry, s *Store, log zerolog.Logger) {
	log = log.With().Str("component", "userban_replica").Logger()

	apply := func(ctx context.Context, env events.Envelope[events.UserBanned]) broker.Result {
		p := env.Payload
		o, err := s.Apply(ctx, Flag{UserID: p.ID, Banned: p.Banned, Role: p.UserRole, Sequence: p.Sequence})

		ev := log.Debug()
		switch {
		case err != nil:
			ev = log.Warn().Err(err)
		case o == replica.OutOfOrder:
			ev = log.Info()
		}
		ev.Str("subject", string(env.Subject)).
			Str("message_id", env.MessageID).
			Str("user_id", p.ID).
			Int64("sequence", p.Sequence).
			Str("outcome", o.String()).
			Msg("user ban replica")

		return replica.Decide(o, err)
	}

	events.Handle(reg, events.UserBannedTopic, apply)
	events.Handle(reg, events.UserUnbannedTopic, apply)
}
