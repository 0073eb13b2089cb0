package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/outbox"
	"github.com/baechuer/tour-booking/services/review-service/internal/domain"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

var _ domain.Repository = (*Repository)(nil)

func New(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Create(ctx context.Context, rv domain.Review, out events.Outgoing) error {
	return r.inTx(ctx, out, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertReviewSQL,
			rv.ID, rv.TourID, rv.UserID, rv.Rating, rv.Title, rv.Text, rv.Sequence, rv.CreatedAt, rv.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyReviewed
		}
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		return nil
	})
}

func (r *Repository) Update(ctx context.Context, rv domain.Review, expected int64, out events.Outgoing) error {
	return r.inTx(ctx, out, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updateReviewSQL,
			rv.ID, expected, rv.Rating, rv.Title, rv.Text, rv.Sequence, rv.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		return expectOne(res, domain.ErrConcurrentUpdate)
	})
}

func (r *Repository) Delete(ctx context.Context, id string, expected int64, out events.Outgoing) error {
	return r.inTx(ctx, out, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteReviewSQL, id, expected)
		if err != nil {
			return fmt.Errorf("delete review: %w", err)
		}
		return expectOne(res, domain.ErrConcurrentUpdate)
	})
}

// inTx runs fn and stages out in one transaction.
func (r *Repository) inTx(ctx context.Context, out events.Outgoing, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := outbox.InsertSQL(ctx, tx, out); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Review, error) {
	return scanReview(r.db.QueryRowContext(ctx, getReviewSQL, id))
}

func (r *Repository) ListByTour(ctx context.Context, tourID string, limit, offset int) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, listReviewsByTourSQL, tourID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(row scanner) (domain.Review, error) {
	var rv domain.Review
	err := row.Scan(&rv.ID, &rv.TourID, &rv.UserID, &rv.Rating, &rv.Title, &rv.Text, &rv.Sequence, &rv.CreatedAt, &rv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	if err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
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
