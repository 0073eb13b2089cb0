package domain

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/security"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Active statuses hold the tour; at most one booking per tour may be active.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusCompleted
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var (
	ErrTourNotFound      = errors.New("tour not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrTourAlreadyBooked = errors.New("tour already booked")
	ErrBookingCompleted  = errors.New("booking already completed")
	ErrForbidden         = errors.New("forbidden")
	ErrUserBanned        = errors.New("user is banned")
	ErrConcurrentUpdate  = errors.New("booking was modified concurrently")
)

type Booking struct {
	ID         string
	UserID     string
	TourID     string
	Price      int64
	Expiration time.Time
	Status     Status
	Sequence   int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Tour is the local replica of a tour owned by tour-service.
type Tour struct {
	ID    string
	Name  string
	Price int64
}

// Actor is the caller of a user-facing operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == security.RoleAdmin }

// NewBooking returns a Pending booking of tour for userID that expires after window.
func NewBooking(id string, tour Tour, userID string, now time.Time, window time.Duration) Booking {
	return Booking{
		ID:         id,
		UserID:     userID,
		TourID:     tour.ID,
		Price:      tour.Price,
		Expiration: now.Add(window),
		Status:     StatusPending,
		Sequence:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanView reports whether a may read b.
func (b Booking) CanView(a Actor) bool {
	return a.IsAdmin() || a.UserID == b.UserID
}

// CancelBy is the user-facing cancellation. Cancelling a cancelled booking
// is a no-op; a completed booking cannot be cancelled.
func CancelBy(b Booking, a Actor, now time.Time) (Booking, bool, error) {
	if !b.CanView(a) {
		return b, false, ErrForbidden
	}
	switch b.Status {
	case StatusCancelled:
		return b, false, nil
	case StatusCompleted:
		return b, false, ErrBookingCompleted
	}
	return transition(b, StatusCancelled, now), true, nil
}

// Expire is the compensating cancellation run when the payment window
// closes. Terminal bookings are left as they are.
func Expire(b Booking, now time.Time) (Booking, bool) {
	if b.Status != StatusPending {
		return b, false
	}
	return transition(b, StatusCancelled, now), true
}

// Complete marks a paid booking. Terminal bookings are left as they are.
func Complete(b Booking, now time.Time) (Booking, bool) {
	if b.Status != StatusPending {
		return b, false
	}
	return transition(b, StatusCompleted, now), true
}

func transition(b Booking, to Status, now time.Time) Booking {
	b.Status = to
	b.Sequence++
	b.UpdatedAt = now
	return b
}

type Repository interface {
	// Create locks the tour replica, rejects the call when the tour already
	// has an active booking, then persists the booking built from the locked
	// tour together with its outbox event.
	Create(ctx context.Context, tourID string, build func(Tour) (Booking, events.Outgoing, error)) (Booking, error)
	Get(ctx context.Context, id string) (Booking, error)
	ListByUser(ctx context.Context, userID string) ([]Booking, error)
	// Update persists b only when the stored sequence equals expected, and
	// stages out in the same transaction. Otherwise ErrConcurrentUpdate.
	Update(ctx context.Context, b Booking, expected int64, out events.Outgoing) error
}

type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
}
