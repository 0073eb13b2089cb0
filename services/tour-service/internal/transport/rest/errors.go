package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
)

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTourNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "tour.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTour):
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		httpx.Fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
	case errors.Is(err, domain.ErrUserBanned):
		httpx.Fail(w, r, http.StatusForbidden, "user.banned", err.Error(), nil)
	case errors.Is(err, domain.ErrDuplicateName):
		httpx.Fail(w, r, http.StatusConflict, "tour.name_taken", err.Error(), nil)
	case errors.Is(err, domain.ErrTourBooked):
		httpx.Fail(w, r, http.StatusConflict, "tour.booked", err.Error(), nil)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		httpx.Fail(w, r, http.StatusConflict, "tour.concurrent_update", err.Error(), nil)
	default:
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		httpx.Fail(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
