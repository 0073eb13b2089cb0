package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/outbox"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ domain.Repository = (*Repository)(nil)
	_ domain.Aggregates = (*Repository)(nil)
)

const tourColumns = `id, name, price, difficulty, duration, group_size,
	COALESCE(booking_id::text, ''), ratings_average, ratings_count, sequence, created_at, updated_at`

func scanTour(row pgx.Row) (domain.Tour, error) {
	var t domain.Tour
	var difficulty string
	err := row.Scan(&t.ID, &t.Name, &t.Price, &difficulty, &t.Duration, &t.GroupSize,
		&t.BookingID, &t.RatingsAverage, &t.RatingsCount, &t.Sequence, &t.CreatedAt, &t.UpdatedAt)
	t.Difficulty = domain.Difficulty(difficulty)
	return t, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (r *Repository) Create(ctx context.Context, t domain.Tour, out events.Outgoing) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO tours (id, name, price, difficulty, duration, group_size, sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.Name, t.Price, string(t.Difficulty), t.Duration, t.GroupSize, t.Sequence, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("insert tour: %w", err)
	}

	if err := outbox.InsertPgx(ctx, tx, out); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Tour, error) {
	t, err := scanTour(r.pool.QueryRow(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Tour{}, domain.ErrTourNotFound
	}
	return t, err
}

func (r *Repository) List(ctx context.Context, f domain.ListFilter) ([]domain.Tour, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tourColumns+`
		FROM tours
		WHERE $1 = '' OR difficulty = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(f.Difficulty), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Tour{}
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update touches only the authoritative columns; derived ones belong to the
// recompute statements below.
func (r *Repository) Update(ctx context.Context, t domain.Tour, expected int64, out events.Outgoing) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE tours
		SET name = $3, price = $4, difficulty = $5, duration = $6, group_size = $7,
		    sequence = $8, updated_at = $9
		WHERE id = $1 AND sequence = $2
	`, t.ID, expected, t.Name, t.Price, string(t.Difficulty), t.Duration, t.GroupSize, t.Sequence, t.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateName
	}
	if err != nil {
		return fmt.Errorf("update tour: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}

	if err := outbox.InsertPgx(ctx, tx, out); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete is conditional on the sequence and on booking_id being empty; the
// follow-up read only picks the error.
func (r *Repository) Delete(ctx context.Context, id string, expected int64, out events.Outgoing) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM tours
		WHERE id = $1 AND sequence = $2 AND booking_id IS NULL
	`, id, expected)
	if err != nil {
		return fmt.Errorf("delete tour: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var booked bool
		err := tx.QueryRow(ctx, `SELECT booking_id IS NOT NULL FROM tours WHERE id = $1 AND sequence = $2`, id, expected).Scan(&booked)
		if err == nil && booked {
			return domain.ErrTourBooked
		}
		return domain.ErrConcurrentUpdate
	}

	if err := outbox.InsertPgx(ctx, tx, out); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) RecomputeBooking(ctx context.Context, tourID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tours SET booking_id = (
			SELECT id FROM booking_refs
			WHERE tour_id = $1 AND NOT deleted AND status IN ('pending', 'completed')
			ORDER BY sequence DESC, id DESC
			LIMIT 1
		)
		WHERE id = $1
	`, tourID)
	if err != nil {
		return fmt.Errorf("recompute booking for %s: %w", tourID, err)
	}
	return nil
}

func (r *Repository) RecomputeRatings(ctx context.Context, tourID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tours SET
			ratings_average = agg.avg,
			ratings_count   = agg.n
		FROM (
			SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0)::float8 AS avg,
			       COUNT(*)::int AS n
			FROM review_refs
			WHERE tour_id = $1 AND NOT deleted
		) AS agg
		WHERE tours.id = $1
	`, tourID)
	if err != nil {
		return fmt.Errorf("recompute ratings for %s: %w", tourID, err)
	}
	return nil
}
