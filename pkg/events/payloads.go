package events

import "time"

// Payloads carry only what downstream replicas need. Field names are a
// cross-service contract.

type TourRef struct {
	ID    string `json:"id"`
	Price int64  `json:"price,omitempty"`
}

type TourCreated struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	Difficulty string `json:"difficulty"`
	Duration   int    `json:"duration"`
	GroupSize  int    `json:"groupSize"`
	Sequence   int64  `json:"sequence"`
}

type TourUpdated TourCreated

type TourDeleted struct {
	ID       string `json:"id"`
	Sequence int64  `json:"sequence"`
}

type BookingMade struct {
	ID         string    `json:"id"`
	Expiration time.Time `json:"expiration"`
	Status     string    `json:"status"`
	Tour       TourRef   `json:"tour"`
	UserID     string    `json:"userId"`
	Sequence   int64     `json:"sequence"`
}

type BookingCancelled struct {
	ID       string  `json:"id"`
	Tour     TourRef `json:"tour"`
	Sequence int64   `json:"sequence"`
}

type BookingCompleted BookingCancelled

type ExpirationCompleted struct {
	BookingID string `json:"bookingId"`
}

type PaymentMade struct {
	ID        string `json:"id"`
	BookingID string `json:"bookingId"`
	ChargeID  string `json:"chargeId"`
	UserID    string `json:"userId"`
	Sequence  int64  `json:"sequence"`
}

type ReviewCreated struct {
	ID       string `json:"id"`
	TourID   string `json:"tourId"`
	UserID   string `json:"userId"`
	Rating   int    `json:"rating"`
	Sequence int64  `json:"sequence"`
}

type ReviewUpdated ReviewCreated

type ReviewDeleted struct {
	ID       string `json:"id"`
	TourID   string `json:"tourId"`
	Sequence int64  `json:"sequence"`
}

// UserBanned is published on both user:banned and user:unbanned.
type UserBanned struct {
	ID       string `json:"id"`
	Banned   bool   `json:"banned"`
	UserRole string `json:"userRole"`
	Sequence int64  `json:"sequence"`
}
