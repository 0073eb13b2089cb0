// Package outbox stages events in the same database transaction as the state
// change they describe, and relays committed rows to the broker.
package outbox

import (
	"context"
	"math"
	"time"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusDead    = "dead"
)

// Schema is the DDL every service applies for its outbox table.
const Schema = `
CREATE TABLE IF NOT EXISTS outbox (
    id            UUID PRIMARY KEY,
    subject       TEXT        NOT NULL,
    body          JSONB       NOT NULL,
    status        TEXT        NOT NULL DEFAULT 'pending',
    attempts      INT         NOT NULL DEFAULT 0,
    next_retry_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_error    TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    sent_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS outbox_due_idx ON outbox (next_retry_at) WHERE status = 'pending';
`

const (
	insertSQL = `INSERT INTO outbox (id, subject, body) VALUES ($1, $2, $3)`

	// claimSQL leases due rows by pushing next_retry_at forward, so a second
	// relay skips them while they are in flight.
	claimSQL = `
UPDATE outbox o
SET next_retry_at = now() + make_interval(secs => $2)
FROM (
    SELECT id FROM outbox
    WHERE status = 'pending' AND next_retry_at <= now()
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
) due
WHERE o.id = due.id
RETURNING o.id, o.subject, o.body, o.attempts, o.created_at`

	markSentSQL = `UPDATE outbox SET status = 'sent', sent_at = now(), last_error = NULL WHERE id = $1`

	markRetrySQL = `UPDATE outbox SET attempts = $2, next_retry_at = $3, last_error = $4 WHERE id = $1`

	markDeadSQL = `UPDATE outbox SET status = 'dead', attempts = $2, last_error = $3 WHERE id = $1`
)

// Record is one claimed outbox row.
type Record struct {
	ID        string
	Subject   string
	Body      []byte
	Attempts  int
	CreatedAt time.Time
}

type Store interface {
	Claim(ctx context.Context, limit int, lease time.Duration) ([]Record, error)
	MarkSent(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, cause string) error
	MarkDead(ctx context.Context, id string, attempts int, cause string) error
}

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Minute
)

// Backoff returns the delay before retry number attempt: 2^attempt seconds
// bounded to [1s, 30m], spread by jitter in [-1, 1] times 10%.
func Backoff(attempt int, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	sec := math.Pow(2, float64(attempt))
	d := time.Duration(sec * float64(time.Second))
	if sec > maxBackoff.Seconds() {
		d = maxBackoff
	}
	if d < minBackoff {
		d = minBackoff
	}
	if jitter > 1 {
		jitter = 1
	}
	if jitter < -1 {
		jitter = -1
	}
	return d + time.Duration(float64(d)*0.1*jitter)
}
