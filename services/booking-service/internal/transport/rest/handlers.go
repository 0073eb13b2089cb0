package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/services/booking-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type BookingService interface {
	Create(ctx context.Context, a domain.Actor, tourID string) (domain.Booking, error)
	Get(ctx context.Context, a domain.Actor, id string) (domain.Booking, error)
	ListMine(ctx context.Context, a domain.Actor) ([]domain.Booking, error)
	Cancel(ctx context.Context, a domain.Actor, id string) (domain.Booking, error)
}

type Handler struct {
	svc BookingService
}

func NewHandler(svc BookingService) *Handler {
	return &Handler{svc: svc}
}

type bookingResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	TourID     string    `json:"tourId"`
	Price      int64     `json:"price"`
	Expiration time.Time `json:"expiration"`
	Status     string    `json:"status"`
	Sequence   int64     `json:"sequence"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:         b.ID,
		UserID:     b.UserID,
		TourID:     b.TourID,
		Price:      b.Price,
		Expiration: b.Expiration,
		Status:     string(b.Status),
		Sequence:   b.Sequence,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func actor(r *http.Request) (domain.Actor, bool) {
	a, ok := httpx.GetAuth(r.Context())
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: a.UserID, Role: a.Role}, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		TourID string `json:"tourId" validate:"required,uuid"`
	}
	if meta, err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	b, err := h.svc.Create(r.Context(), a, req.TourID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusCreated, toResponse(b))
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	list, err := h.svc.ListMine(r.Context(), a)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	out := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toResponse(b))
	}
	httpx.Data(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Get(r.Context(), a, id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(b))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		httpx.Fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.Cancel(r.Context(), a, id)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(b))
}

func bookingID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid id", map[string]string{
			"id": "must be a valid uuid",
		})
		return "", false
	}
	return id.String(), true
}
