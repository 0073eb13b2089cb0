package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
)

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTourNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "tour.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrBookingNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "booking.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrTourAlreadyBooked):
		httpx.Fail(w, r, http.StatusConflict, "booking.tour_already_booked", err.Error(), nil)
	case errors.Is(err, domain.ErrBookingCompleted):
		httpx.Fail(w, r, http.StatusConflict, "booking.completed", err.Error(), nil)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		httpx.Fail(w, r, http.StatusConflict, "booking.concurrent_update", err.Error(), nil)
	case errors.Is(err, domain.ErrUserBanned):
		httpx.Fail(w, r, http.StatusForbidden, "user.banned", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		httpx.Fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
	default:
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		httpx.Fail(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
