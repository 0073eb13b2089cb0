package postgres

import (
	"context"
	"errors"

	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingRefStore is the booking replica table.
type BookingRefStore struct {
	pool *pgxpool.Pool
}

func NewBookingRefStore(pool *pgxpool.Pool) *BookingRefStore {
	return &BookingRefStore{pool: pool}
}

var _ replica.Store[domain.BookingRef] = (*BookingRefStore)(nil)

func (s *BookingRefStore) Get(ctx context.Context, id string) (replica.Record[domain.BookingRef], error) {
	var rec replica.Record[domain.BookingRef]
	err := s.pool.QueryRow(ctx, `
		SELECT id, tour_id, status, sequence, deleted
		FROM booking_refs
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Data.TourID, &rec.Data.Status, &rec.Sequence, &rec.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, replica.ErrNotFound
	}
	return rec, err
}

func (s *BookingRefStore) Insert(ctx context.Context, rec replica.Record[domain.BookingRef]) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO booking_refs (id, tour_id, status, sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Data.TourID, rec.Data.Status, rec.Sequence)
	return insertResult(tag, err)
}

func (s *BookingRefStore) UpdateIf(ctx context.Context, rec replica.Record[domain.BookingRef], expected int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE booking_refs
		SET tour_id = $3, status = $4, sequence = $5
		WHERE id = $1 AND sequence = $2 AND NOT deleted
	`, rec.ID, expected, rec.Data.TourID, rec.Data.Status, rec.Sequence)
	return casResult(tag, err)
}

func (s *BookingRefStore) DeleteIf(ctx context.Context, id string, expected int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE booking_refs
		SET deleted = TRUE, sequence = $2 + 1
		WHERE id = $1 AND sequence = $2 AND NOT deleted
	`, id, expected)
	return casResult(tag, err)
}

// ReviewRefStore is the review replica table. Deleted reviews stay as
// tombstones so late duplicates are still recognised.
type ReviewRefStore struct {
	pool *pgxpool.Pool
}

func NewReviewRefStore(pool *pgxpool.Pool) *ReviewRefStore {
	return &ReviewRefStore{pool: pool}
}

var _ replica.Store[domain.ReviewRef] = (*ReviewRefStore)(nil)

func (s *ReviewRefStore) Get(ctx context.Context, id string) (replica.Record[domain.ReviewRef], error) {
	var rec replica.Record[domain.ReviewRef]
	err := s.pool.QueryRow(ctx, `
		SELECT id, tour_id, rating, sequence, deleted
		FROM review_refs
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Data.TourID, &rec.Data.Rating, &rec.Sequence, &rec.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, replica.ErrNotFound
	}
	return rec, err
}

func (s *ReviewRefStore) Insert(ctx context.Context, rec replica.Record[domain.ReviewRef]) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO review_refs (id, tour_id, rating, sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Data.TourID, rec.Data.Rating, rec.Sequence)
	return insertResult(tag, err)
}

func (s *ReviewRefStore) UpdateIf(ctx context.Context, rec replica.Record[domain.ReviewRef], expected int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE review_refs
		SET tour_id = $3, rating = $4, sequence = $5
		WHERE id = $1 AND sequence = $2 AND NOT deleted
	`, rec.ID, expected, rec.Data.TourID, rec.Data.Rating, rec.Sequence)
	return casResult(tag, err)
}

func (s *ReviewRefStore) DeleteIf(ctx context.Context, id string, expected int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE review_refs
		SET deleted = TRUE, sequence = $2 + 1
		WHERE id = $1 AND sequence = $2 AND NOT deleted
	`, id, expected)
	return casResult(tag, err)
}

func insertResult(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return replica.ErrExists
	}
	return nil
}

func casResult(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return replica.ErrPreconditionFailed
	}
	return nil
}
