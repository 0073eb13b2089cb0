package rest

import (
	"errors"
	"net/http"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/pkg/logger"
	"github.com/baechuer/tour-booking/services/auth-service/internal/domain"
)

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		httpx.Fail(w, r, http.StatusNotFound, "user.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrEmailTaken):
		httpx.Fail(w, r, http.StatusConflict, "user.email_taken", err.Error(), nil)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		httpx.Fail(w, r, http.StatusConflict, "user.concurrent_update", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidUser):
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)
	case errors.Is(err, domain.ErrCannotModerateSelf):
		httpx.Fail(w, r, http.StatusBadRequest, "user.cannot_moderate_self", err.Error(), nil)
	case errors.Is(err, domain.ErrUserBanned):
		httpx.Fail(w, r, http.StatusForbidden, "user.banned", err.Error(), nil)
	case errors.Is(err, domain.ErrForbidden):
		httpx.Fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)
	default:
		logger.WithCtx(r.Context()).Error().Err(err).Msg("unhandled error")
		httpx.Fail(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
