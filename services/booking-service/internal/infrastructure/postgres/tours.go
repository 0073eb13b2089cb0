package postgres

import (
	"context"
	"errors"

	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TourStore is the tour replica table.
type TourStore struct {
	pool *pgxpool.Pool
}

func NewTourStore(pool *pgxpool.Pool) *TourStore {
	return &TourStore{pool: pool}
}

var _ replica.Store[domain.Tour] = (*TourStore)(nil)

func (s *TourStore) Get(ctx context.Context, id string) (replica.Record[domain.Tour], error) {
	var rec replica.Record[domain.Tour]
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, price, sequence, deleted
		FROM tours
		WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Data.Name, &rec.Data.Price, &rec.Sequence, &rec.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, replica.ErrNotFound
	}
	rec.Data.ID = rec.ID
	return rec, err
}

func (s *TourStore) Insert(ctx context.Context, rec replica.Record[domain.Tour]) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tours (id, name, price, sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Data.Name, rec.Data.Price, rec.Sequence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return replica.ErrExists
	}
	return nil
}

func (s *TourStore) UpdateIf(ctx context.Context, rec replica.Record[domain.Tour], expected int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tours
		SET name = $3, price = $4, sequence = $5
		WHERE id = $1 AND sequence = $2 AND NOT deleted
	`, rec.ID, expected, rec.Data.Name, rec.Data.Price, rec.Sequence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return replica.ErrPreconditionFailed
	}
	return nil
}

func (s *TourStore) DeleteIf(ctx context.Context, id string, expected int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tours
		SET deleted = TRUE, sequence = $2 + 1
		WHERE id = $1 AND sequence = $2 AND NOT deleted
	`, id, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return replica.ErrPreconditionFailed
	}
	return nil
}
