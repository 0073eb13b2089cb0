package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/review-service/internal/domain"
)

// TourStore is the tour replica table.
type TourStore struct {
	db *sql.DB
}

var _ replica.Store[domain.Tour] = (*TourStore)(nil)

func NewTourStore(db *sql.DB) *TourStore { return &TourStore{db: db} }

func (s *TourStore) Get(ctx context.Context, id string) (replica.Record[domain.Tour], error) {
	var rec replica.Record[domain.Tour]
	err := s.db.QueryRowContext(ctx, getTourSQL, id).Scan(&rec.ID, &rec.Data.Name, &rec.Sequence, &rec.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return replica.Record[domain.Tour]{}, replica.ErrNotFound
	}
	if err != nil {
		return replica.Record[domain.Tour]{}, err
	}
	return rec, nil
}

func (s *TourStore) Insert(ctx context.Context, rec replica.Record[domain.Tour]) error {
	res, err := s.db.ExecContext(ctx, insertTourSQL, rec.ID, rec.Data.Name, rec.Sequence)
	if err != nil {
		return err
	}
	return expectOne(res, replica.ErrExists)
}

func (s *TourStore) UpdateIf(ctx context.Context, rec replica.Record[domain.Tour], expected int64) error {
	res, err := s.db.ExecContext(ctx, updateTourSQL, rec.ID, expected, rec.Data.Name, rec.Sequence)
	if err != nil {
		return err
	}
	return expectOne(res, replica.ErrPreconditionFailed)
}

func (s *TourStore) DeleteIf(ctx context.Context, id string, expected int64) error {
	res, err := s.db.ExecContext(ctx, deleteTourSQL, id, expected)
	if err != nil {
		return err
	}
	return expectOne(res, replica.ErrPreconditionFailed)
}
