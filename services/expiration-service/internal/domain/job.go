package domain

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidJob = errors.New("invalid expiration job")

// Job is a delayed expiration keyed by booking id. It fires once at FireAt.
type Job struct {
	Key      string
	FireAt   time.Time
	Payload  []byte
	Attempts int
}

// Processor handles a due job. A non-nil error re-arms the job.
type Processor func(ctx context.Context, job Job) error

// Scheduler is the delayed job store.
type Scheduler interface {
	// Schedule returns false when a job with the same key is already pending or has fired.
	Schedule(ctx context.Context, key string, delay time.Duration, payload []byte) (bool, error)
}

// Delay is the time left until fireAt, never negative.
func Delay(fireAt, now time.Time) time.Duration {
	if d := fireAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
