package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/services/expiration-service/internal/domain"
)

const Producer = "expiration-service"

// jobPayload is what a job carries between scheduling and firing.
type jobPayload struct {
	BookingID string `json:"bookingId"`
	TraceID   string `json:"traceId,omitempty"`
}

// Expirer turns booking expirations into delayed jobs and fires
// expiration:completed when they come due.
type Expirer struct {
	jobs domain.Scheduler
	pub  *events.Publisher[events.ExpirationCompleted]
	now  func() time.Time
}

func NewExpirer(jobs domain.Scheduler, pub broker.Publisher) *Expirer {
	return &Expirer{
		jobs: jobs,
		pub:  events.NewPublisher(pub, events.ExpirationCompletedTopic, Producer),
		now:  time.Now,
	}
}

func (e *Expirer) WithClock(now func() time.Time) *Expirer {
	e.now = now
	return e
}

// ScheduleBooking arms the expiration of one booking. Scheduling the same
// booking twice keeps the first job.
func (e *Expirer) ScheduleBooking(ctx context.Context, bookingID string, expiration time.Time, traceID string) (bool, error) {
	if bookingID == "" {
		return false, domain.ErrInvalidJob
	}
	body, err := json.Marshal(jobPayload{BookingID: bookingID, TraceID: traceID})
	if err != nil {
		return false, fmt.Errorf("encode job %s: %w", bookingID, err)
	}
	return e.jobs.Schedule(ctx, bookingID, domain.Delay(expiration, e.now()), body)
}

// Fire is the queue processor. It blocks until the broker confirms.
func (e *Expirer) Fire(ctx context.Context, job domain.Job) error {
	var p jobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil || p.BookingID == "" {
		// the key is the booking id
		p.BookingID = job.Key
	}
	_, err := e.pub.Publish(ctx, events.ExpirationCompleted{BookingID: p.BookingID}, p.TraceID)
	return err
}
