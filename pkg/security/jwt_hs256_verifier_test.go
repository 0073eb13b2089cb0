package security_test

import (
	"testing"
	"time"

	"github.com/baechuer/tour-booking/pkg/security"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "supersecret"

func mint(t *testing.T, key string, claims jwt.Claims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestVerifyAccessToken(t *testing.T) {
	v := security.NewHS256Verifier(secret)
	inHour := time.Now().Add(time.Hour)

	token, err := security.SignHS256(secret, security.TokenClaims{
		UserID: "u1", Role: security.RoleGuide, Issuer: "auth-service", Exp: inHour,
	})
	require.NoError(t, err)

	claims, err := v.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, security.RoleGuide, claims.Role)
	assert.Equal(t, "auth-service", claims.Issuer)
	assert.WithinDuration(t, inHour, claims.Exp, time.Second)
}

func TestVerifyAccessToken_SubjectFallback(t *testing.T) {
	v := security.NewHS256Verifier(secret)
	token := mint(t, secret, jwt.MapClaims{
		"sub": "u9", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256)

	claims, err := v.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u9", claims.UserID)
	assert.Equal(t, "u9", claims.Subject)
}

func TestVerifyAccessToken_Rejects(t *testing.T) {
	v := security.NewHS256Verifier(secret)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", mint(t, secret, jwt.MapClaims{"uid": "u1", "role": "user", "exp": time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256), security.ErrTokenExpired},
		{"no expiry", mint(t, secret, jwt.MapClaims{"uid": "u1", "role": "user"}, jwt.SigningMethodHS256), security.ErrTokenInvalid},
		{"wrong secret", mint(t, "othersecret", jwt.MapClaims{"uid": "u1", "role": "user", "exp": exp}, jwt.SigningMethodHS256), security.ErrTokenInvalid},
		{"hs512", mint(t, secret, jwt.MapClaims{"uid": "u1", "role": "user", "exp": exp}, jwt.SigningMethodHS512), security.ErrTokenInvalid},
		{"unknown role", mint(t, secret, jwt.MapClaims{"uid": "u1", "role": "root", "exp": exp}, jwt.SigningMethodHS256), security.ErrTokenInvalid},
		{"no user", mint(t, secret, jwt.MapClaims{"role": "user", "exp": exp}, jwt.SigningMethodHS256), security.ErrTokenInvalid},
		{"garbage", "not.a.jwt", security.ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyAccessToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyAccessToken_Leeway(t *testing.T) {
	token := mint(t, secret, jwt.MapClaims{
		"uid": "u1", "role": "user", "exp": time.Now().Add(-5 * time.Second).Unix(),
	}, jwt.SigningMethodHS256)

	_, err := security.NewHS256Verifier(secret).VerifyAccessToken(token)
	assert.ErrorIs(t, err, security.ErrTokenExpired)

	_, err = security.NewHS256Verifier(secret, security.WithLeeway(time.Minute)).VerifyAccessToken(token)
	assert.NoError(t, err)
}

func TestSignHS256_RequiresExpiry(t *testing.T) {
	_, err := security.SignHS256(secret, security.TokenClaims{UserID: "u1", Role: security.RoleUser})
	assert.Error(t, err)
}
