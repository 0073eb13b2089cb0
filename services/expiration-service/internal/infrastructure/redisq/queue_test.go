package redisq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/baechuer/tour-booking/services/expiration-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newQueue(t *testing.T, opts Options) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := New(rdb, opts, zerolog.New(io.Discard))
	q.now = func() time.Time { return t0 }
	return q, mr
}

type recorder struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (r *recorder) process(_ context.Context, j domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, j)
	return r.err
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Key)
	}
	return out
}

func TestSchedule_DeduplicatesByKey(t *testing.T) {
	q, _ := newQueue(t, Options{})
	ctx := context.Background()

	added, err := q.Schedule(ctx, "b1", time.Minute, []byte(`{"bookingId":"b1"}`))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Schedule(ctx, "b1", time.Hour, []byte(`other`))
	require.NoError(t, err)
	assert.False(t, added)

	n, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = q.Schedule(ctx, "", time.Minute, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidJob)
}

func TestPoll_FiresOnlyDueJobs(t *testing.T) {
	q, _ := newQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Schedule(ctx, "due", 0, []byte("p-due"))
	require.NoError(t, err)
	_, err = q.Schedule(ctx, "later", time.Hour, []byte("p-later"))
	require.NoError(t, err)

	rec := &recorder{}
	n, err := q.Poll(ctx, t0, rec.process)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.jobs, 1)
	assert.Equal(t, "due", rec.jobs[0].Key)
	assert.Equal(t, []byte("p-due"), rec.jobs[0].Payload)
	assert.Equal(t, 0, rec.jobs[0].Attempts)
	assert.True(t, rec.jobs[0].FireAt.Equal(t0))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	n, err = q.Poll(ctx, t0.Add(time.Hour), rec.process)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"due", "later"}, rec.keys())
}

func TestPoll_FiredKeyCannotBeRescheduled(t *testing.T) {
	q, mr := newQueue(t, Options{})
	ctx := context.Background()

	_, err := q.Schedule(ctx, "b1", 0, []byte("p"))
	require.NoError(t, err)
	_, err = q.Poll(ctx, t0, (&recorder{}).process)
	require.NoError(t, err)

	assert.False(t, mr.Exists("expiration:job:b1"))

	added, err := q.Schedule(ctx, "b1", 0, []byte("p"))
	require.NoError(t, err)
	assert.False(t, added, "a redelivered booking:made must not arm a second job")
}

func TestPoll_FailureRearmsWithBackoff(t *testing.T) {
	q, _ := newQueue(t, Options{RetryBase: time.Second, MaxAttempts: 5})
	ctx := context.Background()

	_, err := q.Schedule(ctx, "b1", 0, []byte("p"))
	require.NoError(t, err)

	rec := &recorder{err: errors.New("broker down")}
	n, err := q.Poll(ctx, t0, rec.process)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending, "failed job is re-armed")

	n, err = q.Poll(ctx, t0.Add(500*time.Millisecond), rec.process)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "not due before the backoff elapses")

	rec.err = nil
	n, err = q.Poll(ctx, t0.Add(time.Second), rec.process)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, rec.jobs, 2)
	assert.Equal(t, 1, rec.jobs[1].Attempts)
	assert.Equal(t, []byte("p"), rec.jobs[1].Payload)

	pending, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)
}

func TestPoll_DropsAfterMaxAttempts(t *testing.T) {
	q, mr := newQueue(t, Options{RetryBase: time.Millisecond, MaxAttempts: 2})
	ctx := context.Background()

	_, err := q.Schedule(ctx, "b1", 0, []byte("p"))
	require.NoError(t, err)

	rec := &recorder{err: errors.New("broker down")}
	now := t0
	for i := 0; i < 3; i++ {
		_, err := q.Poll(ctx, now, rec.process)
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}

	assert.Len(t, rec.jobs, 2)
	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)
	assert.False(t, mr.Exists("expiration:job:b1"))
}

func TestPoll_ConcurrentPollersClaimEachJobOnce(t *testing.T) {
	q, mr := newQueue(t, Options{BatchSize: 3})
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		_, err := q.Schedule(ctx, fmt.Sprintf("b%02d", i), 0, []byte("p"))
		require.NoError(t, err)
	}

	rec := &recorder{}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		other := New(rdb, Options{BatchSize: 3}, zerolog.New(io.Discard))

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n, err := other.Poll(ctx, t0, rec.process)
				if err != nil || n == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	seen := map[string]int{}
	for _, k := range rec.keys() {
		seen[k]++
	}
	assert.Len(t, seen, 30)
	for k, c := range seen {
		assert.Equal(t, 1, c, k)
	}
}

func TestPoll_RedisDown(t *testing.T) {
	q, mr := newQueue(t, Options{})
	mr.Close()

	_, err := q.Poll(context.Background(), t0, (&recorder{}).process)
	assert.Error(t, err)

	_, err = q.Schedule(context.Background(), "b1", 0, nil)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	q, _ := newQueue(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := q.Schedule(ctx, "b1", 0, []byte("p"))
	require.NoError(t, err)

	fired := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx, 10*time.Millisecond, func(_ context.Context, j domain.Job) error {
			fired <- j.Key
			return nil
		})
	}()

	select {
	case k := <-fired:
		assert.Equal(t, "b1", k)
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRetryDelay(t *testing.T) {
	q := New(nil, Options{RetryBase: time.Second, RetryMax: 5 * time.Second}, zerolog.Nop())
	assert.Equal(t, time.Second, q.retryDelay(1))
	assert.Equal(t, 2*time.Second, q.retryDelay(2))
	assert.Equal(t, 4*time.Second, q.retryDelay(3))
	assert.Equal(t, 5*time.Second, q.retryDelay(4))
	assert.Equal(t, 5*time.Second, q.retryDelay(30))
}
