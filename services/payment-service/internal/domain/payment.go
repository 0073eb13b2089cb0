package domain

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/security"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrForbidden        = errors.New("forbidden")
	ErrUserBanned       = errors.New("user is banned")
	ErrBookingCancelled = errors.New("booking is cancelled")
	ErrBookingExpired   = errors.New("booking payment window has closed")
	ErrAlreadyPaid      = errors.New("booking already paid")
	ErrCardDeclined     = errors.New("card declined")
	ErrGatewayFailure   = errors.New("payment gateway failure")
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is the local replica of a booking owned by booking-service.
type Booking struct {
	UserID     string
	TourID     string
	Price      int64
	Status     BookingStatus
	Expiration time.Time
}

type Payment struct {
	ID        string
	BookingID string
	UserID    string
	ChargeID  string
	Amount    int64
	Currency  string
	Sequence  int64
	CreatedAt time.Time
}

type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == security.RoleAdmin }

// CheckPayable applies the booking-side rules of a payment attempt, in order:
// ownership, then status, then the payment window.
func CheckPayable(b Booking, a Actor, now time.Time) error {
	if b.UserID != a.UserID {
		return ErrForbidden
	}
	switch b.Status {
	case BookingCancelled:
		return ErrBookingCancelled
	case BookingCompleted:
		return ErrAlreadyPaid
	}
	if !now.Before(b.Expiration) {
		return ErrBookingExpired
	}
	return nil
}

type ChargeRequest struct {
	Amount   int64
	Currency string
	Token    string
	// IdempotencyKey lets the gateway collapse retried charges for one booking.
	IdempotencyKey string
}

type Charge struct {
	ID     string
	Amount int64
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
	Refund(ctx context.Context, chargeID string) error
}

type Repository interface {
	// Create stores p and stages out in one transaction. A second payment for
	// the same booking fails with ErrAlreadyPaid.
	Create(ctx context.Context, p Payment, out events.Outgoing) error
	Get(ctx context.Context, id string) (Payment, error)
	GetByBooking(ctx context.Context, bookingID string) (Payment, error)
	ListByUser(ctx context.Context, userID string) ([]Payment, error)
	List(ctx context.Context, limit, offset int) ([]Payment, error)
}

type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
}
