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
	auth := httpx.AuthMiddleware(d.Verifier, httpx.AuthOptions{ExpectedIssuer: d.JWTIssuer})

	r.Route("/api/v1/tours", func(r chi.Router) {
		r.Get("/", d.Handler.List)
		r.Get("/{id}", d.Handler.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Use(httpx.RequireRole(security.RoleAdmin))

			r.Post("/", d.Handler.Create)
			r.Patch("/{id}", d.Handler.Update)
			r.Delete("/{id}", d.Handler.Delete)
		})
	})

	return r
}
