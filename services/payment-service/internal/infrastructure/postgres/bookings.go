package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
)

// BookingStore is the booking replica table.
type BookingStore struct {
	db *sql.DB
}

var _ replica.Store[domain.Booking] = (*BookingStore)(nil)

func NewBookingStore(db *sql.DB) *BookingStore { return &BookingStore{db: db} }

func (s *BookingStore) Get(ctx context.Context, id string) (replica.Record[domain.Booking], error) {
	var (
		rec    replica.Record[domain.Booking]
		status string
	)
	err := s.db.QueryRowContext(ctx, getBookingSQL, id).Scan(
		&rec.ID, &rec.Data.UserID, &rec.Data.TourID, &rec.Data.Price, &status,
		&rec.Data.Expiration, &rec.Sequence, &rec.Deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return replica.Record[domain.Booking]{}, replica.ErrNotFound
	}
	if err != nil {
		return replica.Record[domain.Booking]{}, err
	}
	rec.Data.Status = domain.BookingStatus(status)
	return rec, nil
}

func (s *BookingStore) Insert(ctx context.Context, rec replica.Record[domain.Booking]) error {
	b := rec.Data
	res, err := s.db.ExecContext(ctx, insertBookingSQL,
		rec.ID, b.UserID, b.TourID, b.Price, string(b.Status), b.Expiration, rec.Sequence,
	)
	if err != nil {
		return err
	}
	return expectOne(res, replica.ErrExists)
}

func (s *BookingStore) UpdateIf(ctx context.Context, rec replica.Record[domain.Booking], expected int64) error {
	b := rec.Data
	res, err := s.db.ExecContext(ctx, updateBookingSQL,
		rec.ID, expected, b.UserID, b.TourID, b.Price, string(b.Status), b.Expiration, rec.Sequence,
	)
	if err != nil {
		return err
	}
	return expectOne(res, replica.ErrPreconditionFailed)
}

func (s *BookingStore) DeleteIf(ctx context.Context, id string, expected int64) error {
	res, err := s.db.ExecContext(ctx, deleteBookingSQL, id, expected)
	if err != nil {
		return err
	}
	return expectOne(res, replica.ErrPreconditionFailed)
}

func expectOne(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}
