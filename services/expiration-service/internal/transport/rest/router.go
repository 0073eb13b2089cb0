package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

// Health reports the job store's state for readiness probes.
type Health interface {
	Pending(ctx context.Context) (int64, error)
}

// NewRouter serves /healthz, /metrics and /readyz. The expiration service
// has no public API.
func NewRouter(h Health) chi.Router {
	r := httpx.NewRouter(httpx.RouterOptions{})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		n, err := h.Pending(ctx)
		if err != nil {
			httpx.Fail(w, r, http.StatusServiceUnavailable, "redis.unavailable", "job store unreachable", nil)
			return
		}
		httpx.Data(w, http.StatusOK, map[string]any{"status": "ready", "pendingJobs": n})
	})
	return r
}
