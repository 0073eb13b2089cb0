package outbox

import (
	"time"

	"github.com/baechuer/tour-booking/pkg/env"
)

func RelayConfigFromEnv() RelayConfig {
	return RelayConfig{
		Interval:    env.Duration("OUTBOX_INTERVAL", 500*time.Millisecond),
		BatchSize:   env.Int("OUTBOX_BATCH_SIZE", 20),
		Lease:       env.Duration("OUTBOX_LEASE", 15*time.Second),
		MaxAttempts: env.Int("OUTBOX_MAX_ATTEMPTS", 12),
	}
}
