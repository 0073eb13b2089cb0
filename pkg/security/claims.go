// Package security verifies the HS256 access tokens every service accepts.
// Tokens are minted elsewhere with a shared secret; the services only check
// them and never hold sessions.
package security

import (
	"errors"
	"time"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

const (
	RoleUser  = "user"
	RoleGuide = "guide"
	RoleAdmin = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleGuide, RoleAdmin:
		return true
	}
	return false
}

type TokenClaims struct {
	UserID  string
	Role    string
	Exp     time.Time
	Issuer  string
	Subject string
}

type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (TokenClaims, error)
}
