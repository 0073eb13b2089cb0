package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/baechuer/tour-booking/pkg/events"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidUser        = errors.New("invalid user")
	ErrForbidden          = errors.New("forbidden")
	ErrCannotModerateSelf = errors.New("cannot ban or unban yourself")
	ErrUserBanned         = errors.New("user is banned")
	ErrConcurrentUpdate   = errors.New("user was modified concurrently")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleGuide Role = "guide"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleGuide || r == RoleAdmin
}

type User struct {
	ID        string
	Email     string
	Role      Role
	Banned    bool
	Sequence  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == string(RoleAdmin) }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser builds an unbanned user at sequence 0. An empty role defaults to user.
func NewUser(id, email string, role Role, now time.Time) (User, error) {
	email = NormalizeEmail(email)
	if role == "" {
		role = RoleUser
	}
	if email == "" || !strings.Contains(email, "@") || !role.Valid() {
		return User{}, ErrInvalidUser
	}
	return User{
		ID:        id,
		Email:     email,
		Role:      role,
		Sequence:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetBanned returns the user with the flag flipped and the sequence bumped.
// changed is false when the user is already in the requested state.
func SetBanned(u User, banned bool, now time.Time) (next User, changed bool) {
	if u.Banned == banned {
		return u, false
	}
	u.Banned = banned
	u.Sequence++
	u.UpdatedAt = now
	return u, true
}

func (u User) BanPayload() events.UserBanned {
	return events.UserBanned{
		ID:       u.ID,
		Banned:   u.Banned,
		UserRole: string(u.Role),
		Sequence: u.Sequence,
	}
}

type Repository interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	// Update writes u only if the stored sequence still equals expected and
	// stages out in the same transaction.
	Update(ctx context.Context, u User, expected int64, out events.Outgoing) error
}
