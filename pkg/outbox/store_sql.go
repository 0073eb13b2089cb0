package outbox

import (
	"context"
	"database/sql"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Claim(ctx context.Context, limit int, lease time.Duration) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, claimSQL, limit, lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Subject, &r.Body, &r.Attempts, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, markSentSQL, id)
	return err
}

func (s *SQLStore) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, cause string) error {
	_, err := s.db.ExecContext(ctx, markRetrySQL, id, attempts, next, cause)
	return err
}

func (s *SQLStore) MarkDead(ctx context.Context, id string, attempts int, cause string) error {
	_, err := s.db.ExecContext(ctx, markDeadSQL, id, attempts, cause)
	return err
}
