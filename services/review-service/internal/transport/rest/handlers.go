package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/services/review-service/internal/domain"
	"github.com/baechuer/tour-booking/services/review-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ReviewService interface {
	Create(ctx context.Context, a domain.Actor, tourID string, in service.CreateInput) (domain.Review, error)
	Update(ctx context.Context, a domain.Actor, id string, p domain.Patch) (domain.Review, error)
	Delete(ctx context.Context, a domain.Actor, id string) error
	Get(ctx context.Context, id string) (domain.Review, error)
	ListByTour(ctx context.Context, tourID string, limit, offset int) ([]domain.Review, error)
}

type Handler struct {
	svc ReviewService
}

func NewHandler(svc ReviewService) *Handler {
	return &Handler{svc: svc}
}

type reviewResponse struct {
	ID        string    `json:"id"`
	TourID    string    `json:"tourId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title,omitempty"`
	Text      string    `json:"text"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(r domain.Review) reviewResponse {
	return reviewResponse{
		ID:        r.ID,
		TourID:    r.TourID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Title:     r.Title,
		Text:      r.Text,
		Sequence:  r.Sequence,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func actor(r *http.Request) (domain.Actor, bool) {
	a, ok := httpx.GetAuth(r.Context())
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: a.UserID, Role: a.Role}, true
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid "+name, map[string]string{name: "must be a valid uuid"})
		return "", false
	}
	return id.String(), true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		unauthorized(w, r)
		return
	}
	tourID, ok := pathID(w, r, "tourId")
	if !ok {
		return
	}

	var req struct {
		Rating int    `json:"rating" validate:"required,min=1,max=5"`
		Title  string `json:"title" validate:"omitempty,max=50"`
		Text   string `json:"text" validate:"required,max=2000"`
	}
	if meta, err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	rv, err := h.svc.Create(r.Context(), a, tourID, service.CreateInput{Rating: req.Rating, Title: req.Title, Text: req.Text})
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusCreated, toResponse(rv))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		unauthorized(w, r)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Rating *int    `json:"rating" validate:"omitempty,min=1,max=5"`
		Title  *string `json:"title" validate:"omitempty,max=50"`
		Text   *string `json:"text" validate:"omitempty,min=1,max=2000"`
	}
	if meta, err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	rv, err := h.svc.Update(r.Context(), a, id, domain.Patch{Rating: req.Rating, Title: req.Title, Text: req.Text})
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(rv))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		unauthorized(w, r)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), a, id); err != nil {
		handleErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(rv))
}

func (h *Handler) ListByTour(w http.ResponseWriter, r *http.Request) {
	tourID, ok := pathID(w, r, "tourId")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.svc.ListByTour(r.Context(), tourID, limit, offset)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	out := make([]reviewResponse, 0, len(list))
	for _, rv := range list {
		out = append(out, toResponse(rv))
	}
	httpx.Data(w, http.StatusOK, out)
}
