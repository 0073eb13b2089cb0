// Package userban replicates the auth service's ban flag into Redis so every
// service can refuse banned users without calling auth.
package userban

import (
	"context"
	"errors"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "userban:"

// applyScript seeds an absent record at the event's sequence, or advances it
// when the event directly follows the stored sequence.
// Returns 0 applied, 1 duplicate, 2 out of order.
var applyScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'sequence')
local s = tonumber(ARGV[1])
if cur then
  cur = tonumber(cur)
  if s <= cur then
    return 1
  end
  if s ~= cur + 1 then
    return 2
  end
end
redis.call('HSET', KEYS[1], 'sequence', ARGV[1], 'banned', ARGV[2], 'role', ARGV[3])
return 0
`)

type Flag struct {
	UserID   string
	Banned   bool
	Role     string
	Sequence int64
}

type Store struct {
	rdb redis.UniversalClient
}

func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

func key(userID string) string { return keyPrefix + userID }

// Apply records a ban state change carried by an event with sequence seq.
func (s *Store) Apply(ctx context.Context, f Flag) (replica.Outcome, error) {
	banned := "0"
	if f.Banned {
		banned = "1"
	}
	code, err := applyScript.Run(ctx, s.rdb, []string{key(f.UserID)}, f.Sequence, banned, f.Role).Int()
	if err != nil {
		return replica.OutOfOrder, fmt.Errorf("userban apply %s: %w", f.UserID, err)
	}
	switch code {
	case 0:
		return replica.Applied, nil
	case 1:
		return replica.Duplicate, nil
	default:
		return replica.OutOfOrder, nil
	}
}

func (s *Store) Get(ctx context.Context, userID string) (Flag, error) {
	vals, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return Flag{}, fmt.Errorf("userban get %s: %w", userID, err)
	}
	if len(vals) == 0 {
		return Flag{}, replica.ErrNotFound
	}
	var seq int64
	if _, err := fmt.Sscan(vals["sequence"], &seq); err != nil {
		return Flag{}, fmt.Errorf("userban get %s: bad sequence: %w", userID, err)
	}
	return Flag{
		UserID:   userID,
		Banned:   vals["banned"] == "1",
		Role:     vals["role"],
		Sequence: seq,
	}, nil
}

// IsBanned reports false for users the replica has never heard of.
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, error) {
	f, err := s.Get(ctx, userID)
	if errors.Is(err, replica.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Banned, nil
}
