// Package memory is an in-process broker.Client. Messages are queued on
// Publish and handed to subscribers only when Drain is called, which keeps
// saga and ordering tests deterministic.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/baechuer/tour-booking/pkg/broker"
)

type queue struct {
	name     string
	handlers []broker.Handler
	next     int
	pending  []broker.Message
	dead     []broker.Message
}

type Bus struct {
	mu         sync.Mutex
	queues     map[string]*queue
	bindings   map[string][]*queue
	published  []broker.Message
	publishErr error
	closed     bool
	cursor     int
}

var _ broker.Client = (*Bus)(nil)

func New() *Bus {
	return &Bus{
		queues:   make(map[string]*queue),
		bindings: make(map[string][]*queue),
	}
}

func (b *Bus) Publish(ctx context.Context, subject, messageID string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return broker.ErrClosed
	}
	if b.publishErr != nil {
		return b.publishErr
	}

	msg := broker.Message{Subject: subject, ID: messageID, Body: append([]byte(nil), body...)}
	b.published = append(b.published, msg)
	for _, q := range b.bindings[subject] {
		q.pending = append(q.pending, msg)
	}
	return nil
}

// Subscribe binds h to the subscription's queue. Several handlers on the
// same queue compete: each message goes to exactly one of them.
func (b *Bus) Subscribe(_ context.Context, sub broker.Subscription, h broker.Handler) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return broker.ErrClosed
	}

	name := sub.Queue()
	q, ok := b.queues[name]
	if !ok {
		q = &queue{name: name}
		b.queues[name] = q
		b.bindings[sub.Subject] = append(b.bindings[sub.Subject], q)
	}
	q.handlers = append(q.handlers, h)
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// FailPublishes makes every following Publish return err until called with nil.
func (b *Bus) FailPublishes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// Drain delivers queued messages until every queue is empty or only
// messages that keep asking for a retry remain. It returns the number of
// deliveries made.
func (b *Bus) Drain(ctx context.Context) int {
	delivered := 0
	stalled := 0

	for ctx.Err() == nil {
		q, h, msg, total, ok := b.take()
		if !ok {
			return delivered
		}

		res := broker.Invoke(ctx, h, msg)
		delivered++
		b.settle(q, msg, res)

		if res.Action == broker.ActionRetry {
			stalled++
			if stalled > 2*total {
				return delivered
			}
			continue
		}
		stalled = 0
	}
	return delivered
}

func (b *Bus) take() (*queue, broker.Handler, broker.Message, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.queues))
	total := 0
	for name, q := range b.queues {
		names = append(names, name)
		total += len(q.pending)
	}
	if total == 0 {
		return nil, nil, broker.Message{}, 0, false
	}
	sort.Strings(names)

	for i := 0; i < len(names); i++ {
		q := b.queues[names[(b.cursor+i)%len(names)]]
		if len(q.pending) == 0 || len(q.handlers) == 0 {
			continue
		}
		b.cursor = (b.cursor + i + 1) % len(names)

		msg := q.pending[0]
		q.pending = q.pending[1:]
		h := q.handlers[q.next%len(q.handlers)]
		q.next++
		return q, h, msg, total, true
	}
	return nil, nil, broker.Message{}, 0, false
}

func (b *Bus) settle(q *queue, msg broker.Message, res broker.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch res.Action {
	case broker.ActionRetry:
		msg.Attempt++
		msg.Redelivered = true
		q.pending = append(q.pending, msg)
	case broker.ActionReject:
		q.dead = append(q.dead, msg)
	}
}

// Published returns every message published on subject, oldest first.
func (b *Bus) Published(subject string) []broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []broker.Message
	for _, m := range b.published {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

func (b *Bus) Pending(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queueName]; ok {
		return len(q.pending)
	}
	return 0
}

func (b *Bus) Dead(queueName string) []broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queueName]; ok {
		return append([]broker.Message(nil), q.dead...)
	}
	return nil
}
