package domain

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/pkg/security"
)

var (
	ErrTourNotFound     = errors.New("tour not found")
	ErrDuplicateName    = errors.New("tour name already taken")
	ErrInvalidTour      = errors.New("invalid tour")
	ErrForbidden        = errors.New("forbidden")
	ErrUserBanned       = errors.New("user is banned")
	ErrConcurrentUpdate = errors.New("tour was modified concurrently")
	ErrTourBooked       = errors.New("tour has an active booking")
)

type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyMedium    Difficulty = "medium"
	DifficultyDifficult Difficulty = "difficult"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyDifficult:
		return true
	}
	return false
}

// Tour is authoritative here. BookingID, RatingsAverage and RatingsCount are
// derived from replicas; they never advance Sequence and are never published.
type Tour struct {
	ID         string
	Name       string
	Price      int64
	Difficulty Difficulty
	Duration   int
	GroupSize  int

	BookingID      string
	RatingsAverage float64
	RatingsCount   int

	Sequence  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == security.RoleAdmin }

func (t Tour) validate() error {
	switch {
	case len(t.Name) < 2 || len(t.Name) > 20:
		return ErrInvalidTour
	case t.Price <= 0:
		return ErrInvalidTour
	case !t.Difficulty.Valid():
		return ErrInvalidTour
	case t.Duration < 1 || t.Duration > 365:
		return ErrInvalidTour
	case t.GroupSize < 1 || t.GroupSize > 100:
		return ErrInvalidTour
	}
	return nil
}

type Fields struct {
	Name       string
	Price      int64
	Difficulty Difficulty
	Duration   int
	GroupSize  int
}

func NewTour(id string, f Fields, now time.Time) (Tour, error) {
	t := Tour{
		ID:         id,
		Name:       strings.TrimSpace(f.Name),
		Price:      f.Price,
		Difficulty: f.Difficulty,
		Duration:   f.Duration,
		GroupSize:  f.GroupSize,
		Sequence:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.validate(); err != nil {
		return Tour{}, err
	}
	return t, nil
}

type Patch struct {
	Name       *string
	Price      *int64
	Difficulty *Difficulty
	Duration   *int
	GroupSize  *int
}

// Apply returns t with p applied and Sequence advanced, or t unchanged and
// false when p changes nothing.
func Apply(t Tour, p Patch, now time.Time) (Tour, bool, error) {
	next := t
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Price != nil {
		next.Price = *p.Price
	}
	if p.Difficulty != nil {
		next.Difficulty = *p.Difficulty
	}
	if p.Duration != nil {
		next.Duration = *p.Duration
	}
	if p.GroupSize != nil {
		next.GroupSize = *p.GroupSize
	}
	if err := next.validate(); err != nil {
		return t, false, err
	}
	if next.Name == t.Name && next.Price == t.Price && next.Difficulty == t.Difficulty &&
		next.Duration == t.Duration && next.GroupSize == t.GroupSize {
		return t, false, nil
	}
	next.Sequence++
	next.UpdatedAt = now
	return next, true, nil
}

// Payload is the tour:created / tour:updated body for t.
func (t Tour) Payload() events.TourCreated {
	return events.TourCreated{
		ID:         t.ID,
		Name:       t.Name,
		Price:      t.Price,
		Difficulty: string(t.Difficulty),
		Duration:   t.Duration,
		GroupSize:  t.GroupSize,
		Sequence:   t.Sequence,
	}
}

// DeletedPayload is the tour:deleted body. Its sequence is the one the
// deletion would have had as an update, so replicas can order it.
func (t Tour) DeletedPayload() events.TourDeleted {
	return events.TourDeleted{ID: t.ID, Sequence: t.Sequence + 1}
}

// BookingRef is the tour-side replica of a booking.
type BookingRef struct {
	TourID string
	Status string
}

func (b BookingRef) Active() bool { return b.Status == "pending" || b.Status == "completed" }

// ReviewRef is the tour-side replica of a review.
type ReviewRef struct {
	TourID string
	Rating int
}

// ActiveBooking returns the id of the live booking among refs, or "".
func ActiveBooking(refs []replica.Record[BookingRef]) string {
	var (
		id  string
		seq int64 = -1
	)
	for _, r := range refs {
		if r.Deleted || !r.Data.Active() {
			continue
		}
		// more than one can only be seen mid-flight; prefer the most advanced
		if r.Sequence > seq || (r.Sequence == seq && r.ID > id) {
			id, seq = r.ID, r.Sequence
		}
	}
	return id
}

// Ratings averages live review refs, rounded to one decimal. No reviews
// yields 0, 0.
func Ratings(refs []replica.Record[ReviewRef]) (float64, int) {
	var sum, n int
	for _, r := range refs {
		if r.Deleted {
			continue
		}
		sum += r.Data.Rating
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return math.Round(float64(sum)/float64(n)*10) / 10, n
}

type ListFilter struct {
	Difficulty Difficulty
	Limit      int
	Offset     int
}

type Repository interface {
	// Create fails with ErrDuplicateName when the name is taken.
	Create(ctx context.Context, t Tour, out events.Outgoing) error
	Get(ctx context.Context, id string) (Tour, error)
	List(ctx context.Context, f ListFilter) ([]Tour, error)
	// Update writes t only when the stored sequence equals expected,
	// otherwise ErrConcurrentUpdate.
	Update(ctx context.Context, t Tour, expected int64, out events.Outgoing) error
	// Delete removes the tour only when the stored sequence equals expected
	// and no active booking holds it. It fails with ErrTourBooked or
	// ErrConcurrentUpdate otherwise.
	Delete(ctx context.Context, id string, expected int64, out events.Outgoing) error
}

// Aggregates recomputes a tour's derived fields from its replicas. Both calls
// are idempotent and leave Sequence alone.
type Aggregates interface {
	RecomputeBooking(ctx context.Context, tourID string) error
	RecomputeRatings(ctx context.Context, tourID string) error
}

type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
}
