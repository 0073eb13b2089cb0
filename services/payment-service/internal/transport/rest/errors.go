package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
)

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "booking.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrPaymentNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "payment.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		httpx.Fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
	case errors.Is(err, domain.ErrUserBanned):
		httpx.Fail(w, r, http.StatusForbidden, "user.banned", err.Error(), nil)
	case errors.Is(err, domain.ErrBookingCancelled):
		httpx.Fail(w, r, http.StatusConflict, "booking.cancelled", err.Error(), nil)
	case errors.Is(err, domain.ErrBookingExpired):
		httpx.Fail(w, r, http.StatusConflict, "booking.expired", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyPaid):
		httpx.Fail(w, r, http.StatusConflict, "payment.already_paid", err.Error(), nil)
	case errors.Is(err, domain.ErrCardDeclined):
		httpx.Fail(w, r, http.StatusPaymentRequired, "payment.card_declined", err.Error(), nil)
	case errors.Is(err, domain.ErrGatewayFailure):
		logger.WithCtx(r.Context()).Warn().Err(err).Msg("payment gateway failure")
		httpx.Fail(w, r, http.StatusBadGateway, "payment.gateway_unavailable", "payment gateway unavailable", nil)
	default:
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		httpx.Fail(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
