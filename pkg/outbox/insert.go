package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/jackc/pgx/v5"
)

// InsertPgx stages out inside a pgx transaction.
func InsertPgx(ctx context.Context, tx pgx.Tx, out events.Outgoing) error {
	if _, err := tx.Exec(ctx, insertSQL, out.MessageID, string(out.Subject), out.Body); err != nil {
		return fmt.Errorf("outbox insert %s: %w", out.Subject, err)
	}
	return nil
}

// InsertSQL stages out inside a database/sql transaction.
func InsertSQL(ctx context.Context, tx *sql.Tx, out events.Outgoing) error {
	if _, err := tx.ExecContext(ctx, insertSQL, out.MessageID, string(out.Subject), out.Body); err != nil {
		return fmt.Errorf("outbox insert %s: %w", out.Subject, err)
	}
	return nil
}
