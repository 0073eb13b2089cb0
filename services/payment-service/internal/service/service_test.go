package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/events"
	"github.com/baechuer/tour-booking/pkg/replica"
	"github.com/baechuer/tour-booking/services/payment-service/internal/domain"
	"github.com/baechuer/tour-booking/services/payment-service/internal/infrastructure/gateway"
	"github.com/baechuer/tour-booking/services/payment-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Create(ctx context.Context, p domain.Payment, out events.Outgoing) error {
	return m.Called(ctx, p, out).Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (domain.Payment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Payment), args.Error(1)
}

func (m *MockRepo) GetByBooking(ctx context.Context, bookingID string) (domain.Payment, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).(domain.Payment), args.Error(1)
}

func (m *MockRepo) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context, limit, offset int) ([]domain.Payment, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

type MockBans struct{ mock.Mock }

func (m *MockBans) IsBanned(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

var (
	now   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	owner = domain.Actor{UserID: "u1", Role: "user"}
)

type fixture struct {
	svc      *service.PaymentService
	repo     *MockRepo
	bans     *MockBans
	bookings *replica.MemoryStore[domain.Booking]
	gw       *gateway.Sandbox
}

func newFixture(t *testing.T, status domain.BookingStatus, expiration time.Time) *fixture {
	t.Helper()
	f := &fixture{
		repo:     new(MockRepo),
		bans:     new(MockBans),
		bookings: replica.NewMemoryStore[domain.Booking](),
		gw:       gateway.NewSandbox(),
	}
	require.NoError(t, f.bookings.Insert(context.Background(), replica.Record[domain.Booking]{
		ID: "b1", Sequence: 0,
		Data: domain.Booking{UserID: "u1", TourID: "t1", Price: 5000, Status: status, Expiration: expiration},
	}))
	f.svc = service.NewPaymentService(f.repo, f.bookings, f.bans, f.gw, "usd").WithClock(func() time.Time { return now })
	return f
}

func TestPay_Success(t *testing.T) {
	f := newFixture(t, domain.BookingPending, now.Add(time.Minute))
	ctx := appctx.WithRequestID(context.Background(), "req-9")

	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
	f.repo.On("GetByBooking", mock.Anything, "b1").Return(domain.Payment{}, domain.ErrPaymentNotFound)

	var staged events.Outgoing
	f.repo.On("Create", mock.Anything, mock.AnythingOfType("domain.Payment"), mock.AnythingOfType("events.Outgoing")).
		Run(func(args mock.Arguments) { staged = args.Get(2).(events.Outgoing) }).
		Return(nil)

	p, err := f.svc.Pay(ctx, owner, "b1", "tok_visa")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), p.Amount)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, int64(0), p.Sequence)
	assert.NotEmpty(t, p.ChargeID)

	assert.Equal(t, events.SubjectPaymentMade, staged.Subject)
	env, err := events.PaymentMadeTopic.Decode(staged.Body)
	require.NoError(t, err)
	assert.Equal(t, events.PaymentMade{ID: p.ID, BookingID: "b1", ChargeID: p.ChargeID, UserID: "u1", Sequence: 0}, env.Payload)
	assert.Equal(t, "req-9", env.TraceID)

	f.repo.AssertExpectations(t)
}

func TestPay_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		status     domain.BookingStatus
		expiration time.Time
		actor      domain.Actor
		bookingID  string
		banned     bool
		prior      bool
		token      string
		want       error
	}{
		{name: "banned", banned: true, want: domain.ErrUserBanned},
		{name: "unknown booking", bookingID: "b404", want: domain.ErrBookingNotFound},
		{name: "not owner", actor: domain.Actor{UserID: "u2"}, want: domain.ErrForbidden},
		{name: "cancelled", status: domain.BookingCancelled, want: domain.ErrBookingCancelled},
		{name: "completed", status: domain.BookingCompleted, want: domain.ErrAlreadyPaid},
		{name: "expired", expiration: now.Add(-time.Second), want: domain.ErrBookingExpired},
		{name: "prior payment", prior: true, want: domain.ErrAlreadyPaid},
		{name: "declined card", token: gateway.TokenDeclined, want: domain.ErrCardDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.status
			if status == "" {
				status = domain.BookingPending
			}
			expiration := tt.expiration
			if expiration.IsZero() {
				expiration = now.Add(time.Minute)
			}
			actor := tt.actor
			if actor.UserID == "" {
				actor = owner
			}
			bookingID := tt.bookingID
			if bookingID == "" {
				bookingID = "b1"
			}
			token := tt.token
			if token == "" {
				token = "tok_visa"
			}

			f := newFixture(t, status, expiration)
			f.bans.On("IsBanned", mock.Anything, actor.UserID).Return(tt.banned, nil)
			if tt.prior {
				f.repo.On("GetByBooking", mock.Anything, "b1").Return(domain.Payment{ID: "p0"}, nil)
			} else {
				f.repo.On("GetByBooking", mock.Anything, "b1").Return(domain.Payment{}, domain.ErrPaymentNotFound).Maybe()
			}

			_, err := f.svc.Pay(context.Background(), actor, bookingID, token)
			assert.ErrorIs(t, err, tt.want)
			f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

// lostRaceRepo lets every caller past GetByBooking until a payment is stored,
// then rejects later inserts the way the unique index on booking_id does.
type lostRaceRepo struct {
	domain.Repository
	mu      sync.Mutex
	checks  int
	racers  int
	stored  *domain.Payment
	creates int
}

func (r *lostRaceRepo) GetByBooking(_ context.Context, _ string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks++
	if r.checks <= r.racers || r.stored == nil {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return *r.stored, nil
}

func (r *lostRaceRepo) Create(_ context.Context, p domain.Payment, _ events.Outgoing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.stored != nil {
		return domain.ErrAlreadyPaid
	}
	r.stored = &p
	return nil
}

func TestPay_ConcurrentPaysKeepWinnersCharge(t *testing.T) {
	f := newFixture(t, domain.BookingPending, now.Add(time.Minute))
	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
	repo := &lostRaceRepo{racers: 2}
	svc := service.NewPaymentService(repo, f.bookings, f.bans, f.gw, "usd").WithClock(func() time.Time { return now })

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Pay(context.Background(), owner, "b1", "tok_visa")
		}(i)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrAlreadyPaid):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 2, repo.creates)
	require.NotNil(t, repo.stored)
	assert.False(t, f.gw.Refunded(repo.stored.ChargeID), "the stored payment's charge must survive")
}

func TestPay_LostRaceRefundsForeignCharge(t *testing.T) {
	f := newFixture(t, domain.BookingPending, now.Add(time.Minute))
	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
	f.repo.On("GetByBooking", mock.Anything, "b1").Return(domain.Payment{}, domain.ErrPaymentNotFound).Once()
	f.repo.On("GetByBooking", mock.Anything, "b1").Return(domain.Payment{ID: "p0", BookingID: "b1", ChargeID: "ch_other"}, nil).Once()

	var chargeID string
	f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { chargeID = args.Get(1).(domain.Payment).ChargeID }).
		Return(domain.ErrAlreadyPaid)

	_, err := f.svc.Pay(context.Background(), owner, "b1", "tok_visa")
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
	assert.True(t, f.gw.Refunded(chargeID))
	assert.False(t, f.gw.Refunded("ch_other"))
}

func TestPay_StoreFailureRefundsCharge(t *testing.T) {
	f := newFixture(t, domain.BookingPending, now.Add(time.Minute))
	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, nil)
	f.repo.On("GetByBooking", mock.Anything, "b1").Return(domain.Payment{}, domain.ErrPaymentNotFound)

	var chargeID string
	f.repo.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { chargeID = args.Get(1).(domain.Payment).ChargeID }).
		Return(errors.New("db down"))

	_, err := f.svc.Pay(context.Background(), owner, "b1", "tok_visa")
	assert.ErrorContains(t, err, "db down")
	assert.True(t, f.gw.Refunded(chargeID))
}

func TestPay_BanLookupFailure(t *testing.T) {
	f := newFixture(t, domain.BookingPending, now.Add(time.Minute))
	f.bans.On("IsBanned", mock.Anything, "u1").Return(false, errors.New("redis down"))

	_, err := f.svc.Pay(context.Background(), owner, "b1", "tok_visa")
	assert.ErrorContains(t, err, "redis down")
}

func TestGet_HidesOtherUsersPayments(t *testing.T) {
	f := newFixture(t, domain.BookingPending, now.Add(time.Minute))
	f.repo.On("Get", mock.Anything, "p1").Return(domain.Payment{ID: "p1", UserID: "u1"}, nil)

	_, err := f.svc.Get(context.Background(), domain.Actor{UserID: "u2"}, "p1")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	p, err := f.svc.Get(context.Background(), domain.Actor{UserID: "a1", Role: "admin"}, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestListAll_ClampsPaging(t *testing.T) {
	f := newFixture(t, domain.BookingPending, now.Add(time.Minute))
	f.repo.On("List", mock.Anything, 20, 0).Return([]domain.Payment{}, nil)

	_, err := f.svc.ListAll(context.Background(), 1000, -5)
	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}
