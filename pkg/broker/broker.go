// Package broker defines the event bus contract shared by every service:
// confirmed publishing and durable, queue-grouped, manually acknowledged
// subscriptions. Handlers report their decision explicitly through Result.
package broker

import (
	"context"
	"errors"
	"fmt"
)

var ErrClosed = errors.New("broker: connection closed")

// Message is one delivery handed to a Handler.
type Message struct {
	Subject string
	ID      string
	Body    []byte
	// Attempt counts prior deliveries that ended in Retry. Zero on first delivery.
	Attempt     int
	Redelivered bool
}

type Action int

const (
	// ActionAck removes the message from the queue.
	ActionAck Action = iota
	// ActionRetry leaves the message to be delivered again later.
	ActionRetry
	// ActionReject dead-letters the message without further attempts.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionRetry:
		return "retry"
	case ActionReject:
		return "reject"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Result is what a handler decided to do with a message.
type Result struct {
	Action Action
	Err    error
}

func Ack() Result { return Result{Action: ActionAck} }

func Retry(err error) Result { return Result{Action: ActionRetry, Err: err} }

func Reject(err error) Result { return Result{Action: ActionReject, Err: err} }

type Handler func(ctx context.Context, msg Message) Result

// Subscription names a durable consumer. All instances sharing QueueGroup
// compete for messages; each group receives its own copy of every message.
type Subscription struct {
	Subject     string
	DurableName string
	QueueGroup  string
}

// Queue is the durable queue name backing the subscription.
func (s Subscription) Queue() string {
	name := s.DurableName
	if name == "" {
		name = s.Subject
	}
	return s.QueueGroup + "." + name
}

func (s Subscription) Validate() error {
	if s.Subject == "" {
		return errors.New("broker: subscription subject is required")
	}
	if s.QueueGroup == "" {
		return errors.New("broker: subscription queue group is required")
	}
	return nil
}

type Publisher interface {
	// Publish returns once the broker has confirmed the message.
	Publish(ctx context.Context, subject, messageID string, body []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, sub Subscription, h Handler) error
}

type Client interface {
	Publisher
	Subscriber
	Close() error
}

// Invoke runs h and converts a panic into a Retry.
func Invoke(ctx context.Context, h Handler, msg Message) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Retry(fmt.Errorf("handler panic: %v", p))
		}
	}()
	return h(ctx, msg)
}
