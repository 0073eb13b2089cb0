package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/baechuer/tour-booking/pkg/security"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	secret    = "test-secret"
	uid       = "0d5b1c9e-8e57-4d0a-9a43-3e8f0f6f6a10"
	bookingID = "9a1e6f30-2a44-4e1b-8d8f-1c6b3f7e0c55"
	paymentID = "3c7d2b10-6e1f-4f0a-9c2d-5b8e1a4f7d33"
)

type MockService struct{ mock.Mock }

func (m *MockService) Pay(ctx context.Context, a domain.Actor, bookingID, token string) (domain.Payment, error) {
	args := m.Called(ctx, a, bookingID, token)
	return args.Get(0).(domain.Payment), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, a domain.Actor, id string) (domain.Payment, error) {
	args := m.Called(ctx, a, id)
	return args.Get(0).(domain.Payment), args.Error(1)
}

func (m *MockService) ListMine(ctx context.Context, a domain.Actor) ([]domain.Payment, error) {
	args := m.Called(ctx, a)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func (m *MockService) ListAll(ctx context.Context, limit, offset int) ([]domain.Payment, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func newTestRouter(svc PaymentService) http.Handler {
	return NewRouter(RouterDeps{
		Handler:  NewHandler(svc),
		Verifier: security.NewHS256Verifier(secret),
	})
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := security.SignHS256(secret, security.TokenClaims{UserID: uid, Role: role, Exp: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(h http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error.Code
}

func TestPay(t *testing.T) {
	user := domain.Actor{UserID: uid, Role: security.RoleUser}

	t.Run("created", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Pay", mock.Anything, user, bookingID, "tok_visa").
			Return(domain.Payment{ID: paymentID, BookingID: bookingID, UserID: uid, ChargeID: "ch_1", Amount: 5000, Currency: "usd"}, nil)

		rr := do(newTestRouter(svc), http.MethodPost, "/api/v1/payments", token(t, security.RoleUser),
			`{"bookingId":"`+bookingID+`","token":"tok_visa"}`)
		assert.Equal(t, http.StatusCreated, rr.Code)

		var body struct {
			Data paymentResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "ch_1", body.Data.ChargeID)
		assert.Equal(t, int64(5000), body.Data.Amount)
	})

	t.Run("missing token field", func(t *testing.T) {
		rr := do(newTestRouter(new(MockService)), http.MethodPost, "/api/v1/payments", token(t, security.RoleUser),
			`{"bookingId":"`+bookingID+`"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "request.invalid", errorCode(t, rr))
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := do(newTestRouter(new(MockService)), http.MethodPost, "/api/v1/payments", "", `{}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	errs := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrBookingNotFound, http.StatusNotFound, "booking.not_found"},
		{domain.ErrForbidden, http.StatusForbidden, "auth.forbidden"},
		{domain.ErrUserBanned, http.StatusForbidden, "user.banned"},
		{domain.ErrBookingCancelled, http.StatusConflict, "booking.cancelled"},
		{domain.ErrBookingExpired, http.StatusConflict, "booking.expired"},
		{domain.ErrAlreadyPaid, http.StatusConflict, "payment.already_paid"},
		{domain.ErrCardDeclined, http.StatusPaymentRequired, "payment.card_declined"},
		{domain.ErrGatewayFailure, http.StatusBadGateway, "payment.gateway_unavailable"},
	}
	for _, tt := range errs {
		t.Run(tt.code, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Pay", mock.Anything, user, bookingID, "tok_visa").Return(domain.Payment{}, tt.err)

			rr := do(newTestRouter(svc), http.MethodPost, "/api/v1/payments", token(t, security.RoleUser),
				`{"bookingId":"`+bookingID+`","token":"tok_visa"}`)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, errorCode(t, rr))
		})
	}
}

func TestAdminList(t *testing.T) {
	t.Run("admin pages", func(t *testing.T) {
		svc := new(MockService)
		svc.On("ListAll", mock.Anything, 10, 30).Return([]domain.Payment{{ID: paymentID}}, nil)

		rr := do(newTestRouter(svc), http.MethodGet, "/api/v1/admin/payments?limit=10&offset=30", token(t, security.RoleAdmin), "")
		assert.Equal(t, http.StatusOK, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("user is forbidden", func(t *testing.T) {
		svc := new(MockService)
		rr := do(newTestRouter(svc), http.MethodGet, "/api/v1/admin/payments", token(t, security.RoleUser), "")
		assert.Equal(t, http.StatusForbidden, rr.Code)
		svc.AssertNotCalled(t, "ListAll", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetPayment(t *testing.T) {
	svc := new(MockService)
	svc.On("Get", mock.Anything, domain.Actor{UserID: uid, Role: security.RoleUser}, paymentID).
		Return(domain.Payment{}, domain.ErrPaymentNotFound)

	rr := do(newTestRouter(svc), http.MethodGet, "/api/v1/payments/"+paymentID, token(t, security.RoleUser), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(newTestRouter(svc), http.MethodGet, "/api/v1/payments/not-a-uuid", token(t, security.RoleUser), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
