package outbox

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows confirmed by the broker.",
	}, []string{"subject"})

	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and were rescheduled.",
	}, []string{"subject"})

	deadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_total",
		Help: "Outbox rows that exhausted their attempts.",
	}, []string{"subject"})
)

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	Lease       time.Duration
	MaxAttempts int
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Lease <= 0 {
		c.Lease = 15 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 12
	}
	return c
}

// Relay moves committed outbox rows to the broker, oldest first.
type Relay struct {
	store Store
	pub   broker.Publisher
	cfg   RelayConfig
	log   zerolog.Logger
	now   func() time.Time
	rand  func() float64
}

func NewRelay(store Store, pub broker.Publisher, cfg RelayConfig, log zerolog.Logger) *Relay {
	return &Relay{
		store: store,
		pub:   pub,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("component", "outbox_relay").Logger(),
		now:   time.Now,
		rand:  rand.Float64,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	var lastErr string
	var lastAt time.Time

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopped")
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				if err.Error() != lastErr || time.Since(lastAt) > 10*time.Second {
					r.log.Warn().Err(err).Msg("outbox batch failed")
					lastErr = err.Error()
					lastAt = time.Now()
				}
			} else {
				lastErr = ""
			}
		}
	}
}

// Flush publishes one batch of due rows and returns how many were confirmed.
// Per-row publish failures are recorded on the row, not returned.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.store.Claim(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })

	sent := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := r.pub.Publish(ctx, rec.Subject, rec.ID, rec.Body); err != nil {
			r.fail(ctx, rec, err)
			continue
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			// the lease expires and the row is published again; consumers dedupe
			r.log.Warn().Err(err).Str("outbox_id", rec.ID).Msg("mark sent failed")
			continue
		}
		publishedTotal.WithLabelValues(rec.Subject).Inc()
		sent++

		r.log.Debug().
			Str("outbox_id", rec.ID).
			Str("subject", rec.Subject).
			Msg("published")
	}
	return sent, nil
}

func (r *Relay) fail(ctx context.Context, rec Record, cause error) {
	attempts := rec.Attempts + 1
	log := r.log.With().
		Str("outbox_id", rec.ID).
		Str("subject", rec.Subject).
		Int("attempt", attempts).
		Logger()

	if attempts >= r.cfg.MaxAttempts {
		if err := r.store.MarkDead(ctx, rec.ID, attempts, cause.Error()); err != nil {
			log.Warn().Err(err).Msg("mark dead failed")
			return
		}
		deadTotal.WithLabelValues(rec.Subject).Inc()
		log.Error().Err(cause).Msg("outbox moved to DEAD")
		return
	}

	delay := Backoff(attempts, r.rand()*2-1)
	if err := r.store.MarkRetry(ctx, rec.ID, attempts, r.now().Add(delay), cause.Error()); err != nil {
		log.Warn().Err(err).Msg("mark retry failed")
		return
	}
	failedTotal.WithLabelValues(rec.Subject).Inc()
	log.Warn().Err(cause).Dur("retry_in", delay).Msg("outbox publish failed; scheduled retry")
}
