// Package gateway holds payment gateway adapters.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
	"github.com/google/uuid"
)

// Test tokens understood by the sandbox.
const (
	TokenDeclined    = "tok_chargeDeclined"
	TokenUnavailable = "tok_gatewayUnavailable"
)

// Sandbox accepts every token except the declined and unavailable test
// tokens. Charges with the same idempotency key return the first charge.
type Sandbox struct {
	mu      sync.Mutex
	charges map[string]domain.Charge
	refunds map[string]bool
}

var _ domain.Gateway = (*Sandbox)(nil)

func NewSandbox() *Sandbox {
	return &Sandbox{
		charges: make(map[string]domain.Charge),
		refunds: make(map[string]bool),
	}
}

func (s *Sandbox) Charge(ctx context.Context, req domain.ChargeRequest) (domain.Charge, error) {
	if err := ctx.Err(); err != nil {
		return domain.Charge{}, err
	}
	switch strings.TrimSpace(req.Token) {
	case "":
		return domain.Charge{}, fmt.Errorf("%w: empty token", domain.ErrCardDeclined)
	case TokenDeclined:
		return domain.Charge{}, domain.ErrCardDeclined
	case TokenUnavailable:
		return domain.Charge{}, fmt.Errorf("%w: sandbox unavailable", domain.ErrGatewayFailure)
	}
	if req.Amount <= 0 {
		return domain.Charge{}, fmt.Errorf("%w: amount must be positive", domain.ErrCardDeclined)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.IdempotencyKey != "" {
		if c, ok := s.charges[req.IdempotencyKey]; ok {
			return c, nil
		}
	}
	c := domain.Charge{ID: "ch_" + strings.ReplaceAll(uuid.NewString(), "-", ""), Amount: req.Amount}
	if req.IdempotencyKey != "" {
		s.charges[req.IdempotencyKey] = c
	}
	return c, nil
}

func (s *Sandbox) Refund(_ context.Context, chargeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds[chargeID] = true
	return nil
}

// Refunded reports whether chargeID was refunded.
func (s *Sandbox) Refunded(chargeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunds[chargeID]
}
