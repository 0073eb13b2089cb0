package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/security"
)

var (
	ErrTourNotFound     = errors.New("tour not found")
	ErrReviewNotFound   = errors.New("review not found")
	ErrAlreadyReviewed  = errors.New("user already reviewed this tour")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrForbidden        = errors.New("forbidden")
	ErrUserBanned       = errors.New("user is banned")
	ErrConcurrentUpdate = errors.New("review was modified concurrently")
)

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	ID        string
	TourID    string
	UserID    string
	Rating    int
	Title     string
	Text      string
	Sequence  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tour is the local replica of a tour owned by tour-service.
type Tour struct {
	Name string
}

type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == security.RoleAdmin }

func ValidateRating(r int) error {
	if r < MinRating || r > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

func NewReview(id, tourID, userID string, rating int, title, text string, now time.Time) (Review, error) {
	if err := ValidateRating(rating); err != nil {
		return Review{}, err
	}
	return Review{
		ID:        id,
		TourID:    tourID,
		UserID:    userID,
		Rating:    rating,
		Title:     strings.TrimSpace(title),
		Text:      strings.TrimSpace(text),
		Sequence:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Rating *int
	Title  *string
	Text   *string
}

// Apply returns r with p applied and its sequence advanced. An empty or
// no-op patch leaves r untouched and reports false.
func Apply(r Review, p Patch, now time.Time) (Review, bool, error) {
	next := r
	if p.Rating != nil {
		if err := ValidateRating(*p.Rating); err != nil {
			return r, false, err
		}
		next.Rating = *p.Rating
	}
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Text != nil {
		next.Text = strings.TrimSpace(*p.Text)
	}
	if next.Rating == r.Rating && next.Title == r.Title && next.Text == r.Text {
		return r, false, nil
	}
	next.Sequence++
	next.UpdatedAt = now
	return next, true, nil
}

// CanModify reports whether a may edit r. Only the author edits.
func (r Review) CanModify(a Actor) bool { return r.UserID == a.UserID }

// CanDelete reports whether a may delete r: the author or an admin.
func (r Review) CanDelete(a Actor) bool { return r.UserID == a.UserID || a.IsAdmin() }

type Repository interface {
	// Create fails with ErrAlreadyReviewed when the user already reviewed the tour.
	Create(ctx context.Context, r Review, out events.Outgoing) error
	Get(ctx context.Context, id string) (Review, error)
	ListByTour(ctx context.Context, tourID string, limit, offset int) ([]Review, error)
	// Update and Delete apply only when the stored sequence equals expected,
	// otherwise ErrConcurrentUpdate. Both stage out in the same transaction.
	Update(ctx context.Context, r Review, expected int64, out events.Outgoing) error
	Delete(ctx context.Context, id string, expected int64, out events.Outgoing) error
}

type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
}
