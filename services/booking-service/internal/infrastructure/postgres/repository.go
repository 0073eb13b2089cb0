package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/outbox"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
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

var _ domain.Repository = (*Repository)(nil)

const bookingColumns = `id, user_id, tour_id, price, expiration, status, sequence, created_at, updated_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	var status string
	err := row.Scan(&b.ID, &b.UserID, &b.TourID, &b.Price, &b.Expiration, &status, &b.Sequence, &b.CreatedAt, &b.UpdatedAt)
	b.Status = domain.Status(status)
	return b, err
}

// Create locks the tour replica row first, so concurrent creates for the
// same tour serialize on it. The partial unique index on active bookings
// backs the check up.
func (r *Repository) Create(ctx context.Context, tourID string, build func(domain.Tour) (domain.Booking, events.Outgoing, error)) (domain.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var t domain.Tour
	err = tx.QueryRow(ctx, `
		SELECT id, name, price
		FROM tours
		WHERE id = $1 AND NOT deleted
		FOR UPDATE
	`, tourID).Scan(&t.ID, &t.Name, &t.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, domain.ErrTourNotFound
	}
	if err != nil {
		return domain.Booking{}, fmt.Errorf("lock tour: %w", err)
	}

	var booked bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM bookings
			WHERE tour_id = $1 AND status IN ('pending', 'completed')
		)
	`, tourID).Scan(&booked)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("check active booking: %w", err)
	}
	if booked {
		return domain.Booking{}, domain.ErrTourAlreadyBooked
	}

	b, out, err := build(t)
	if err != nil {
		return domain.Booking{}, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.UserID, b.TourID, b.Price, b.Expiration, string(b.Status), b.Sequence, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Booking{}, domain.ErrTourAlreadyBooked
		}
		return domain.Booking{}, fmt.Errorf("insert booking: %w", err)
	}

	if err := outbox.InsertPgx(ctx, tx, out); err != nil {
		return domain.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	return b, err
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, b domain.Booking, expected int64, out events.Outgoing) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $3, sequence = $4, updated_at = $5
		WHERE id = $1 AND sequence = $2
	`, b.ID, expected, string(b.Status), b.Sequence, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}

	if err := outbox.InsertPgx(ctx, tx, out); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
