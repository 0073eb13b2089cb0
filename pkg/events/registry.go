package events

import (
	"context"
	"fmt"
	"sort"

	"github.com/baechuer/tour-booking/pkg/broker"
)

// Registry is the subscription table of a service: one decoding handler per subject.
type Registry struct {
	handlers map[Subject]broker.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Subject]broker.Handler)}
}

// Handle registers fn for topic. Bodies that fail to decode are rejected.
// Registering the same subject twice panics.
func Handle[T any](r *Registry, topic Topic[T], fn func(ctx context.Context, env Envelope[T]) broker.Result) {
	if _, dup := r.handlers[topic.Subject]; dup {
		panic(fmt.Sprintf("events: duplicate handler for %s", topic.Subject))
	}
	r.handlers[topic.Subject] = func(ctx context.Context, msg broker.Message) broker.Result {
		env, err := topic.Decode(msg.Body)
		if err != nil {
			return broker.Reject(err)
		}
		if env.MessageID == "" {
			env.MessageID = msg.ID
		}
		return fn(ctx, env)
	}
}

func (r *Registry) Subjects() []Subject {
	out := make([]Subject, 0, len(r.handlers))
	for s := range r.handlers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch routes msg to its subject's handler. Unknown subjects are rejected.
func (r *Registry) Dispatch(ctx context.Context, msg broker.Message) broker.Result {
	h, ok := r.handlers[Subject(msg.Subject)]
	if !ok {
		return broker.Reject(fmt.Errorf("events: no handler for %q", msg.Subject))
	}
	return broker.Invoke(ctx, h, msg)
}

// SubscribeAll opens one durable subscription per registered subject, all in queueGroup.
func (r *Registry) SubscribeAll(ctx context.Context, sub broker.Subscriber, queueGroup string) error {
	for _, s := range r.Subjects() {
		err := sub.Subscribe(ctx, broker.Subscription{
			Subject:     string(s),
			DurableName: string(s),
			QueueGroup:  queueGroup,
		}, r.handlers[s])
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	return nil
}
