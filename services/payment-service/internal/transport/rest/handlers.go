package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/baechuer/tour-booking/pkg/httpx"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type PaymentService interface {
	Pay(ctx context.Context, a domain.Actor, bookingID, token string) (domain.Payment, error)
	Get(ctx context.Context, a domain.Actor, id string) (domain.Payment, error)
	ListMine(ctx context.Context, a domain.Actor) ([]domain.Payment, error)
	ListAll(ctx context.Context, limit, offset int) ([]domain.Payment, error)
}

type Handler struct {
	svc PaymentService
}

func NewHandler(svc PaymentService) *Handler {
	return &Handler{svc: svc}
}

type paymentResponse struct {
	ID        string    `json:"id"`
	BookingID string    `json:"bookingId"`
	UserID    string    `json:"userId"`
	ChargeID  string    `json:"chargeId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"createdAt"`
}

func toResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		BookingID: p.BookingID,
		UserID:    p.UserID,
		ChargeID:  p.ChargeID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Sequence:  p.Sequence,
		CreatedAt: p.CreatedAt,
	}
}

func toList(list []domain.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toResponse(p))
	}
	return out
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

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		unauthorized(w, r)
		return
	}

	var req struct {
		BookingID string `json:"bookingId" validate:"required,uuid"`
		Token     string `json:"token" validate:"required,max=255"`
	}
	if meta, err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", meta)
		return
	}

	p, err := h.svc.Pay(r.Context(), a, req.BookingID, req.Token)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		unauthorized(w, r)
		return
	}
	list, err := h.svc.ListMine(r.Context(), a)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toList(list))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		unauthorized(w, r)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Fail(w, r, http.StatusBadRequest, "request.invalid", "invalid id", map[string]string{"id": "must be a valid uuid"})
		return
	}
	p, err := h.svc.Get(r.Context(), a, id.String())
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toResponse(p))
}

// ListAll is the admin listing. ?limit= and ?offset= page through it.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.svc.ListAll(r.Context(), limit, offset)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	httpx.Data(w, http.StatusOK, toList(list))
}
