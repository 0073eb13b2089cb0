package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/services/review-service/internal/domain"
)

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrTourNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "tour.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrReviewNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "review.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		httpx.Fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
	case errors.Is(err, domain.ErrUserBanned):
		httpx.Fail(w, r, http.StatusForbidden, "user.banned", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyReviewed):
		httpx.Fail(w, r, http.StatusConflict, "review.already_exists", err.Error(), nil)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		httpx.Fail(w, r, http.StatusConflict, "review.concurrent_update", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidRating):
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), map[string]string{"rating": "must be between 1 and 5"})
	default:
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		httpx.Fail(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
