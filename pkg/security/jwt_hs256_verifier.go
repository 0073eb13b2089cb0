package security

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// wireClaims is the token body: {"uid","role","iss","sub","exp","iat"}.
type wireClaims struct {
	UserID string `json:"uid,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type HS256Verifier struct {
	secret []byte
	parser *jwt.Parser
}

type VerifierOption func(*[]jwt.ParserOption)

// WithLeeway tolerates clock skew between the issuer and this service.
func WithLeeway(d time.Duration) VerifierOption {
	return func(opts *[]jwt.ParserOption) { *opts = append(*opts, jwt.WithLeeway(d)) }
}

func NewHS256Verifier(secret string, opts ...VerifierOption) *HS256Verifier {
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	for _, o := range opts {
		o(&popts)
	}
	return &HS256Verifier{secret: []byte(secret), parser: jwt.NewParser(popts...)}
}

// VerifyAccessToken accepts only HS256 tokens that carry an expiry and one of
// the known roles. The user id comes from "uid", falling back to "sub".
func (v *HS256Verifier) VerifyAccessToken(token string) (TokenClaims, error) {
	var wc wireClaims
	_, err := v.parser.ParseWithClaims(token, &wc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenClaims{}, ErrTokenExpired
	case err != nil:
		return TokenClaims{}, ErrTokenInvalid
	}

	uid := strings.TrimSpace(wc.UserID)
	if uid == "" {
		uid = strings.TrimSpace(wc.Subject)
	}
	role := strings.TrimSpace(wc.Role)
	if uid == "" || !ValidRole(role) {
		return TokenClaims{}, ErrTokenInvalid
	}

	return TokenClaims{
		UserID:  uid,
		Role:    role,
		Exp:     wc.ExpiresAt.Time,
		Issuer:  wc.Issuer,
		Subject: wc.Subject,
	}, nil
}

// SignHS256 mints a token VerifyAccessToken accepts. It backs the e2e client
// and handler tests.
func SignHS256(secret string, c TokenClaims) (string, error) {
	if c.Exp.IsZero() {
		return "", errors.New("security: token needs an expiry")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, wireClaims{
		UserID: c.UserID,
		Role:   c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   c.Subject,
			ExpiresAt: jwt.NewNumericDate(c.Exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}).SignedString([]byte(secret))
}
