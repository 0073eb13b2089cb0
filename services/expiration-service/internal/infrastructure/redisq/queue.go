// Package redisq is a Redis delayed job queue: a sorted set of job keys scored
// by fire time plus one hash per job holding its payload and attempt count.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/baechuer/tour-booking/services/expiration-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	scheduledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expiration_jobs_scheduled_total",
		Help: "Schedule calls by result (scheduled|duplicate).",
	}, []string{"result"})

	firedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expiration_jobs_fired_total",
		Help: "Claimed jobs by processing result (ok|rearmed|dropped).",
	}, []string{"result"})

	fireLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "expiration_job_fire_lag_seconds",
		Help:    "Delay between a job's fire time and its claim.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
)

// KEYS[1] due set, KEYS[2] job hash, KEYS[3] fired marker.
// ARGV[1] fire time (unix ms), ARGV[2] job key, ARGV[3] payload.
var scheduleScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
  return 0
end
local added = redis.call('ZADD', KEYS[1], 'NX', ARGV[1], ARGV[2])
if added == 1 then
  redis.call('HSET', KEYS[2], 'payload', ARGV[3], 'attempts', '0')
end
return added
`)

// KEYS[1] due set. ARGV[1] now (unix ms), ARGV[2] batch size,
// ARGV[3] job hash prefix, ARGV[4] fired marker prefix, ARGV[5] marker ttl (ms).
// Returns a flat list of key, payload, attempts, score.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, ARGV[2])
local out = {}
for i = 1, #ids, 2 do
  local id = ids[i]
  if redis.call('ZREM', KEYS[1], id) == 1 then
    local h = ARGV[3] .. id
    local payload = redis.call('HGET', h, 'payload')
    local attempts = redis.call('HGET', h, 'attempts')
    redis.call('DEL', h)
    redis.call('SET', ARGV[4] .. id, '1', 'PX', ARGV[5])
    table.insert(out, id)
    table.insert(out, payload or '')
    table.insert(out, attempts or '0')
    table.insert(out, ids[i + 1])
  end
end
return out
`)

// KEYS[1] due set, KEYS[2] job hash.
// ARGV[1] fire time (unix ms), ARGV[2] job key, ARGV[3] payload, ARGV[4] attempts.
var rearmScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], 'payload', ARGV[3], 'attempts', ARGV[4])
return 1
`)

type Options struct {
	// Prefix namespaces every key, e.g. "expiration".
	Prefix string
	// BatchSize bounds how many jobs one Poll claims.
	BatchSize int
	// MaxAttempts is how many failed runs a job gets before it is dropped.
	MaxAttempts int
	// FiredTTL is how long a claimed key keeps refusing new schedules.
	FiredTTL time.Duration
	// RetryBase is the first re-arm delay; later ones double up to RetryMax.
	RetryBase time.Duration
	RetryMax  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = "expiration"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.FiredTTL <= 0 {
		o.FiredTTL = 24 * time.Hour
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 30 * time.Second
	}
	return o
}

type Queue struct {
	rdb  redis.UniversalClient
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

var _ domain.Scheduler = (*Queue)(nil)

func New(rdb redis.UniversalClient, opts Options, log zerolog.Logger) *Queue {
	return &Queue{
		rdb:  rdb,
		opts: opts.withDefaults(),
		log:  log.With().Str("component", "expiration_queue").Logger(),
		now:  time.Now,
	}
}

func (q *Queue) dueKey() string             { return q.opts.Prefix + ":due" }
func (q *Queue) jobPrefix() string          { return q.opts.Prefix + ":job:" }
func (q *Queue) firedPrefix() string        { return q.opts.Prefix + ":fired:" }
func (q *Queue) jobKey(key string) string   { return q.jobPrefix() + key }
func (q *Queue) firedKey(key string) string { return q.firedPrefix() + key }

func (q *Queue) Schedule(ctx context.Context, key string, delay time.Duration, payload []byte) (bool, error) {
	if key == "" {
		return false, domain.ErrInvalidJob
	}
	if delay < 0 {
		delay = 0
	}
	fireAt := q.now().Add(delay).UnixMilli()

	added, err := scheduleScript.Run(ctx, q.rdb,
		[]string{q.dueKey(), q.jobKey(key), q.firedKey(key)},
		fireAt, key, payload,
	).Int()
	if err != nil {
		return false, fmt.Errorf("schedule %s: %w", key, err)
	}
	if added == 0 {
		scheduledTotal.WithLabelValues("duplicate").Inc()
		return false, nil
	}
	scheduledTotal.WithLabelValues("scheduled").Inc()
	return true, nil
}

// Pending reports how many jobs wait to fire.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.dueKey()).Result()
}

// Poll claims jobs due at now and runs p on each. It returns the number of
// jobs claimed. A claimed job is gone from Redis; failures are re-armed.
func (q *Queue) Poll(ctx context.Context, now time.Time, p domain.Processor) (int, error) {
	jobs, err := q.claim(ctx, now)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		fireLag.Observe(now.Sub(job.FireAt).Seconds())

		perr := p(ctx, job)
		if perr == nil {
			firedTotal.WithLabelValues("ok").Inc()
			continue
		}

		job.Attempts++
		if job.Attempts >= q.opts.MaxAttempts {
			firedTotal.WithLabelValues("dropped").Inc()
			q.log.Error().Err(perr).
				Str("job_key", job.Key).
				Int("attempts", job.Attempts).
				Msg("expiration job dropped after max attempts")
			continue
		}

		next := now.Add(q.retryDelay(job.Attempts))
		if err := q.rearm(ctx, job, next); err != nil {
			firedTotal.WithLabelValues("dropped").Inc()
			q.log.Error().Err(err).Str("job_key", job.Key).Msg("expiration job rearm failed")
			continue
		}
		firedTotal.WithLabelValues("rearmed").Inc()
		q.log.Warn().Err(perr).
			Str("job_key", job.Key).
			Int("attempts", job.Attempts).
			Time("next_at", next).
			Msg("expiration job failed, rearmed")
	}
	return len(jobs), nil
}

// Run polls every interval until ctx is cancelled. A full batch is followed
// by an immediate poll.
func (q *Queue) Run(ctx context.Context, interval time.Duration, p domain.Processor) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr time.Time
	for {
		for {
			n, err := q.Poll(ctx, q.now(), p)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if time.Since(lastErr) > 10*time.Second {
					q.log.Warn().Err(err).Msg("expiration poll failed")
					lastErr = time.Now()
				}
				break
			}
			if n < q.opts.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) claim(ctx context.Context, now time.Time) ([]domain.Job, error) {
	raw, err := claimScript.Run(ctx, q.rdb, []string{q.dueKey()},
		now.UnixMilli(), q.opts.BatchSize, q.jobPrefix(), q.firedPrefix(), q.opts.FiredTTL.Milliseconds(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("claim due jobs: malformed reply of %d items", len(raw))
	}

	jobs := make([]domain.Job, 0, len(raw)/4)
	for i := 0; i < len(raw); i += 4 {
		attempts, _ := strconv.Atoi(raw[i+2])
		score, _ := strconv.ParseFloat(raw[i+3], 64)
		jobs = append(jobs, domain.Job{
			Key:      raw[i],
			Payload:  []byte(raw[i+1]),
			Attempts: attempts,
			FireAt:   time.UnixMilli(int64(score)),
		})
	}
	return jobs, nil
}

func (q *Queue) rearm(ctx context.Context, job domain.Job, at time.Time) error {
	err := rearmScript.Run(ctx, q.rdb,
		[]string{q.dueKey(), q.jobKey(job.Key)},
		at.UnixMilli(), job.Key, job.Payload, job.Attempts,
	).Err()
	if err != nil {
		return fmt.Errorf("rearm %s: %w", job.Key, err)
	}
	return nil
}

func (q *Queue) retryDelay(attempt int) time.Duration {
	d := q.opts.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.opts.RetryMax {
			return q.opts.RetryMax
		}
	}
	return d
}
