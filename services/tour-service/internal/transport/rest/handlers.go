package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/services/tour-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type TourService interface {
	Create(ctx context.Context, a domain.Actor, f domain.Fields) (domain.Tour, error)
	Update(ctx context.Context, a domain.Actor, id string, p domain.Patch) (domain.Tour, error)
	Delete(ctx context.Context, a domain.Actor, id string) error
	Get(ctx context.Context, id string) (domain.Tour, error)
	List(ctx context.Context, f domain.ListFilter) ([]domain.Tour, error)
}

type Handler struct {
	svc TourService
}

func NewHandler(svc TourService) *Handler {
	return &Handler{svc: svc}
}

type tourResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Price          int64     `json:"price"`
	Difficulty     string    `json:"difficulty"`
	Duration       int       `json:"duration"`
	GroupSize      int       `json:"groupSize"`
	BookingID      string    `json:"bookingId,omitempty"`
	RatingsAverage float64   `json:"ratingsAverage"`
	RatingsCount   int       `json:"ratingsCount"`
	Sequence       int64     `json:"sequence"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toResponse(t domain.Tour) tourResponse {
	return tourResponse{
		ID:             t.ID,
		Name:           t.Name,
		Price:          t.Price,
		Difficulty:     string(t.Difficulty),
		Duration:       t.Duration,
		GroupSize:      t.GroupSize,
		BookingID:      t.BookingID,
		RatingsAverage: t.RatingsAverage,
		RatingsCount:   t.RatingsCount,
		Sequence:       t.Sequence,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func actor(r *http.Request) (domain.Actor, bool) {
	a, ok := httpx.GetAuth(r.Context())
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: a.UserID, Role: a.Role}, true
}

func tourID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid id", map[string]string{"id": "must be a valid uuid"})
		return "", false
	}
	return id.String(), true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		Name       string `json:"name" validate:"required,min=2,max=20"`
		Price      int64  `json:"price" validate:"required,gt=0"`
		Difficulty string `json:"difficulty" validate:"required,oneof=easy medium difficult"`
		Duration   int    `json:"duration" validate:"required,min=1,max=365"`
		GroupSize  int    `json:"groupSize" validate:"required,min=1,max=100"`
	}
	if meta, err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	t, err := h.svc.Create(r.Context(), a, domain.Fields{
		Name:       req.Name,
		Price:      req.Price,
		Difficulty: domain.Difficulty(req.Difficulty),
		Duration:   req.Duration,
		GroupSize:  req.GroupSize,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	id, ok := tourID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name       *string `json:"name" validate:"omitempty,min=2,max=20"`
		Price      *int64  `json:"price" validate:"omitempty,gt=0"`
		Difficulty *string `json:"difficulty" validate:"omitempty,oneof=easy medium difficult"`
		Duration   *int    `json:"duration" validate:"omitempty,min=1,max=365"`
		GroupSize  *int    `json:"groupSize" validate:"omitempty,min=1,max=100"`
	}
	if meta, err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	p := domain.Patch{Name: req.Name, Price: req.Price, Duration: req.Duration, GroupSize: req.GroupSize}
	if req.Difficulty != nil {
		d := domain.Difficulty(*req.Difficulty)
		p.Difficulty = &d
	}

	t, err := h.svc.Update(r.Context(), a, id, p)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(t))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	id, ok := tourID(w, r)
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
	id, ok := tourID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(t))
}

// List supports ?difficulty=, ?limit= and ?offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := h.svc.List(r.Context(), domain.ListFilter{
		Difficulty: domain.Difficulty(q.Get("difficulty")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}
	out := make([]tourResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toResponse(t))
	}
	httpx.Data(w, http.StatusOK, out)
}
