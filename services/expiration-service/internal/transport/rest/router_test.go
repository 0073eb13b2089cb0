package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubHealth struct {
	n   int64
	err error
}

func (s stubHealth) Pending(context.Context) (int64, error) { return s.n, s.err }

func TestReadyz(t *testing.T) {
	tests := []struct {
		name string
		h    stubHealth
		want int
		body string
	}{
		{"ready", stubHealth{n: 3}, http.StatusOK, `"pendingJobs":3`},
		{"redis down", stubHealth{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, `"redis.unavailable"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewRouter(tt.h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.want, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.body)
		})
	}
}

func TestHealthz(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRouter(stubHealth{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
