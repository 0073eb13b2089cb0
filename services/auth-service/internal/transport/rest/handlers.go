package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/services/auth-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type UserService interface {
	Register(ctx context.Context, a domain.Actor, email string, role domain.Role) (domain.User, error)
	Ban(ctx context.Context, a domain.Actor, id string) (domain.User, error)
	Unban(ctx context.Context, a domain.Actor, id string) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
}

type Handler struct {
	svc UserService
}

func NewHandler(svc UserService) *Handler {
	return &Handler{svc: svc}
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Banned    bool      `json:"banned"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		Banned:    u.Banned,
		Sequence:  u.Sequence,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func actor(r *http.Request) (domain.Actor, bool) {
	a, ok := httpx.GetAuth(r.Context())
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: a.UserID, Role: a.Role}, true
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid id", map[string]string{"id": "must be a valid uuid"})
		return "", false
	}
	return id.String(), true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		Email string `json:"email" validate:"required,email,max=254"`
		Role  string `json:"role" validate:"omitempty,oneof=user guide admin"`
	}
	if meta, err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	u, err := h.svc.Register(r.Context(), a, req.Email, domain.Role(req.Role))
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusCreated, toResponse(u))
}

func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.svc.Ban)
}

func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.svc.Unban)
}

func (h *Handler) moderate(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Actor, string) (domain.User, error)) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	id, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := fn(r.Context(), a, id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(u))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(u))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toResponse(u))
	}
	httpx.Data(w, http.StatusOK, out)
}
