package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxStore struct {
	pool *pgxpool.Pool
}

func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

func (s *PgxStore) Claim(ctx context.Context, limit int, lease time.Duration) ([]Record, error) {
	rows, err := s.pool.Query(ctx, claimSQL, limit, lease.Seconds())
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

func (s *PgxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, markSentSQL, id)
	return err
}

func (s *PgxStore) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, cause string) error {
	_, err := s.pool.Exec(ctx, markRetrySQL, id, attempts, next, cause)
	return err
}

func (s *PgxStore) MarkDead(ctx context.Context, id string, attempts int, cause string) error {
	_, err := s.pool.Exec(ctx, markDeadSQL, id, attempts, cause)
	return err
}
