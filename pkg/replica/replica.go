// Package replica keeps local copies of entities owned by other services in
// step with the owner's version counter. An event carrying sequence s is
// applied only when the local copy sits at s-1; older events are duplicates
// and newer ones wait for the gap to close.
package replica

import (
	"context"
	"errors"
	"fmt"

	"github.com/baechuer/tour-booking/pkg/broker"
)

var (
	ErrNotFound           = errors.New("replica: record not found")
	ErrExists             = errors.New("replica: record already exists")
	ErrPreconditionFailed = errors.New("replica: sequence precondition failed")
	ErrOutOfOrder         = errors.New("replica: event arrived ahead of its predecessor")
)

type Outcome int

const (
	Applied Outcome = iota
	Duplicate
	OutOfOrder
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case OutOfOrder:
		return "out_of_order"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Check classifies an incoming sequence against the replica's current one.
func Check(current, incoming int64) Outcome {
	switch {
	case incoming <= current:
		return Duplicate
	case incoming == current+1:
		return Applied
	default:
		return OutOfOrder
	}
}

type Record[T any] struct {
	ID       string
	Sequence int64
	Deleted  bool
	Data     T
}

// Store is the datastore boundary for one replicated entity. UpdateIf and
// DeleteIf must be a single atomic compare-and-set on Sequence.
type Store[T any] interface {
	// Get returns tombstoned records too, so late duplicates stay recognisable.
	Get(ctx context.Context, id string) (Record[T], error)
	// Insert fails with ErrExists when the id is already present.
	Insert(ctx context.Context, rec Record[T]) error
	// UpdateIf writes rec only when the stored sequence equals expected.
	UpdateIf(ctx context.Context, rec Record[T], expected int64) error
	// DeleteIf tombstones the record at expected+1 only when the stored sequence equals expected.
	DeleteIf(ctx context.Context, id string, expected int64) error
}

// Seed stores the first version of a replica at the event's own sequence.
func Seed[T any](ctx context.Context, s Store[T], rec Record[T]) (Outcome, error) {
	err := s.Insert(ctx, rec)
	switch {
	case err == nil:
		return Applied, nil
	case errors.Is(err, ErrExists):
		return Duplicate, nil
	default:
		return OutOfOrder, fmt.Errorf("seed %s: %w", rec.ID, err)
	}
}

// Advance applies fn to the replica when seq directly follows the stored sequence.
// fn must be pure: it receives the current data and returns the next data.
func Advance[T any](ctx context.Context, s Store[T], id string, seq int64, fn func(T) (T, error)) (Outcome, error) {
	cur, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// the creation event has not been applied yet
		return OutOfOrder, nil
	}
	if err != nil {
		return OutOfOrder, fmt.Errorf("load %s: %w", id, err)
	}

	o := Check(cur.Sequence, seq)
	if o != Applied {
		return o, nil
	}
	if cur.Deleted {
		return Duplicate, nil
	}

	next, err := fn(cur.Data)
	if err != nil {
		return OutOfOrder, fmt.Errorf("transition %s@%d: %w", id, seq, err)
	}

	err = s.UpdateIf(ctx, Record[T]{ID: id, Sequence: seq, Data: next}, seq-1)
	if errors.Is(err, ErrPreconditionFailed) {
		return reclassify(ctx, s, id, seq)
	}
	if err != nil {
		return OutOfOrder, fmt.Errorf("update %s@%d: %w", id, seq, err)
	}
	return Applied, nil
}

// Remove tombstones the replica when seq directly follows the stored sequence.
func Remove[T any](ctx context.Context, s Store[T], id string, seq int64) (Outcome, error) {
	cur, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return OutOfOrder, nil
	}
	if err != nil {
		return OutOfOrder, fmt.Errorf("load %s: %w", id, err)
	}

	o := Check(cur.Sequence, seq)
	if o != Applied {
		return o, nil
	}
	if cur.Deleted {
		return Duplicate, nil
	}

	err = s.DeleteIf(ctx, id, seq-1)
	if errors.Is(err, ErrPreconditionFailed) {
		return reclassify(ctx, s, id, seq)
	}
	if err != nil {
		return OutOfOrder, fmt.Errorf("delete %s@%d: %w", id, seq, err)
	}
	return Applied, nil
}

// reclassify runs after losing a compare-and-set to a concurrent writer.
func reclassify[T any](ctx context.Context, s Store[T], id string, seq int64) (Outcome, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return OutOfOrder, fmt.Errorf("reload %s: %w", id, err)
	}
	if Check(cur.Sequence, seq) == Duplicate {
		return Duplicate, nil
	}
	return OutOfOrder, nil
}

// Decide maps an apply outcome to the broker decision.
func Decide(o Outcome, err error) broker.Result {
	if err != nil {
		return broker.Retry(err)
	}
	switch o {
	case Applied, Duplicate:
		return broker.Ack()
	default:
		return broker.Retry(ErrOutOfOrder)
	}
}
