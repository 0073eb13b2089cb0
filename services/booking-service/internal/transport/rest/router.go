package rest

import (
	"net/http"
	"time"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/pkg/security"
	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Handler    *Handler
	Verifier   security.AccessTokenVerifier
	JWTIssuer  string
	RateLimit  int
	RateWindow time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := httpx.NewRouter(httpx.RouterOptions{RateLimit: d.RateLimit, RateWindow: d.RateWindow})

	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Use(httpx.AuthMiddleware(d.Verifier, httpx.AuthOptions{ExpectedIssuer: d.JWTIssuer}))

		r.Post("/", d.Handler.Create)
		r.Get("/", d.Handler.ListMine)
		r.Get("/{id}", d.Handler.Get)
		r.Post("/{id}/cancel", d.Handler.Cancel)
	})

	return r
}
