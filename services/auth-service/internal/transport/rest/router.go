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

	r.Route("/api/v1/admin/users", func(r chi.Router) {
		r.Use(httpx.AuthMiddleware(d.Verifier, httpx.AuthOptions{ExpectedIssuer: d.JWTIssuer}))
		r.Use(httpx.RequireRole(security.RoleAdmin))

		r.Post("/", d.Handler.Register)
		r.Get("/", d.Handler.List)
		r.Get("/{id}", d.Handler.Get)
		r.Post("/{id}/ban", d.Handler.Ban)
		r.Post("/{id}/unban", d.Handler.Unban)
	})

	return r
}
