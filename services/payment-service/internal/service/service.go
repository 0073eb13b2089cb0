package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
	"github.com/google/uuid"
)

const Producer = "payment-service"

type BookingReader interface {
	Get(ctx context.Context, id string) (replica.Record[domain.Booking], error)
}

type PaymentService struct {
	repo     domain.Repository
	bookings BookingReader
	bans     domain.BanChecker
	gateway  domain.Gateway
	currency string
	now      func() time.Time
}

func NewPaymentService(repo domain.Repository, bookings BookingReader, bans domain.BanChecker, gw domain.Gateway, currency string) *PaymentService {
	return &PaymentService{
		repo:     repo,
		bookings: bookings,
		bans:     bans,
		gateway:  gw,
		currency: currency,
		now:      time.Now,
	}
}

func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// Pay charges the booking's price and records the payment together with its
// payment:made event.
func (s *PaymentService) Pay(ctx context.Context, a domain.Actor, bookingID, token string) (domain.Payment, error) {
	banned, err := s.bans.IsBanned(ctx, a.UserID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("ban lookup: %w", err)
	}
	if banned {
		return domain.Payment{}, domain.ErrUserBanned
	}

	rec, err := s.bookings.Get(ctx, bookingID)
	if errors.Is(err, replica.ErrNotFound) || (err == nil && rec.Deleted) {
		return domain.Payment{}, domain.ErrBookingNotFound
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("load booking %s: %w", bookingID, err)
	}

	now := s.now().UTC()
	if err := domain.CheckPayable(rec.Data, a, now); err != nil {
		return domain.Payment{}, err
	}

	_, err = s.repo.GetByBooking(ctx, bookingID)
	switch {
	case err == nil:
		return domain.Payment{}, domain.ErrAlreadyPaid
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return domain.Payment{}, fmt.Errorf("load payment for %s: %w", bookingID, err)
	}

	charge, err := s.gateway.Charge(ctx, domain.ChargeRequest{
		Amount:         rec.Data.Price,
		Currency:       s.currency,
		Token:          token,
		IdempotencyKey: bookingID,
	})
	if err != nil {
		return domain.Payment{}, err
	}

	p := domain.Payment{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		UserID:    a.UserID,
		ChargeID:  charge.ID,
		Amount:    charge.Amount,
		Currency:  s.currency,
		Sequence:  0,
		CreatedAt: now,
	}
	out, err := events.PaymentMadeTopic.Encode(events.PaymentMade{
		ID:        p.ID,
		BookingID: p.BookingID,
		ChargeID:  p.ChargeID,
		UserID:    p.UserID,
		Sequence:  p.Sequence,
	}, events.Meta{Producer: Producer, TraceID: appctx.GetRequestID(ctx), OccurredAt: now})
	if err != nil {
		return domain.Payment{}, err
	}

	if err := s.repo.Create(ctx, p, out); err != nil {
		if errors.Is(err, domain.ErrAlreadyPaid) {
			s.refundUnlessStored(ctx, bookingID, charge.ID)
			return domain.Payment{}, err
		}
		// the charge went through but no payment row owns it
		s.refund(ctx, bookingID, charge.ID)
		return domain.Payment{}, fmt.Errorf("store payment for %s: %w", bookingID, err)
	}
	return p, nil
}

// refundUnlessStored handles a lost insert race. Charges share the booking id
// as idempotency key, so the winner's row usually owns this very charge.
func (s *PaymentService) refundUnlessStored(ctx context.Context, bookingID, chargeID string) {
	stored, err := s.repo.GetByBooking(ctx, bookingID)
	if err != nil {
		logger.WithCtx(ctx).Error().Err(err).
			Str("charge_id", chargeID).
			Str("booking_id", bookingID).
			Msg("cannot resolve owner of charge after lost race; not refunding")
		return
	}
	if stored.ChargeID == chargeID {
		return
	}
	s.refund(ctx, bookingID, chargeID)
}

func (s *PaymentService) refund(ctx context.Context, bookingID, chargeID string) {
	if err := s.gateway.Refund(ctx, chargeID); err != nil {
		logger.WithCtx(ctx).Error().Err(err).
			Str("charge_id", chargeID).
			Str("booking_id", bookingID).
			Msg("refund of orphaned charge failed")
	}
}

func (s *PaymentService) Get(ctx context.Context, a domain.Actor, id string) (domain.Payment, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if !a.IsAdmin() && p.UserID != a.UserID {
		// other users' payments are indistinguishable from missing ones
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (s *PaymentService) ListMine(ctx context.Context, a domain.Actor) ([]domain.Payment, error) {
	return s.repo.ListByUser(ctx, a.UserID)
}

func (s *PaymentService) ListAll(ctx context.Context, limit, offset int) ([]domain.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
