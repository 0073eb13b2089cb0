package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/outbox"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

var _ domain.Repository = (*Repository)(nil)

func New(db *sql.DB) *Repository { return &Repository{db: db} }

func (r *Repository) Create(ctx context.Context, p domain.Payment, out events.Outgoing) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, insertPaymentSQL,
		p.ID, p.BookingID, p.UserID, p.ChargeID, p.Amount, p.Currency, p.Sequence, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyPaid
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := outbox.InsertSQL(ctx, tx, out); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, getPaymentSQL, id))
}

func (r *Repository) GetByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, getPaymentByBookingSQL, bookingID))
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	return r.list(ctx, listPaymentsByUserSQL, userID)
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]domain.Payment, error) {
	return r.list(ctx, listPaymentsSQL, limit, offset)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(row scanner) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.UserID, &p.ChargeID, &p.Amount, &p.Currency, &p.Sequence, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
