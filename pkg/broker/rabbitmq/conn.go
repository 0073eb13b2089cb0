// Package rabbitmq implements broker.Client on a RabbitMQ topic exchange.
//
// Every subscription owns a durable queue "<group>.<durable>" bound to the
// subject, plus two side queues: "<queue>.retry", which holds retried
// messages for a per-message delay (RetryDelay doubling up to RetryMaxDelay)
// before dead-lettering them back into the main queue, and "<queue>.dlq",
// which collects rejected and exhausted messages.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/baechuer/tour-booking/pkg/broker"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	headerRetryCount  = "x-retry-count"
	headerOriginalKey = "x-original-routing-key"
)

type Config struct {
	URL      string
	Exchange string
	Prefetch int
	AppID    string

	// RetryDelay is the first retry's delay; each further retry doubles it
	// up to RetryMaxDelay.
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	// MaxAttempts caps deliveries per message before dead-lettering. Zero is unlimited.
	MaxAttempts int

	// PublishTimeout bounds the wait for a broker confirm.
	PublishTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = "tourbook.events"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 16
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.RetryMaxDelay < c.RetryDelay {
		c.RetryMaxDelay = c.RetryDelay
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	return c
}

func (c Config) dlx() string { return c.Exchange + ".dlx" }

// retryDelay is the wait before the given retry attempt (1-based).
func (c Config) retryDelay(attempt int) time.Duration {
	d := c.RetryDelay
	for i := 1; i < attempt && d < c.RetryMaxDelay; i++ {
		d *= 2
	}
	return minDur(d, c.RetryMaxDelay)
}

// exhausted reports whether a message about to make its next attempt has
// used up MaxAttempts.
func (c Config) exhausted(next int) bool {
	return c.MaxAttempts > 0 && next >= c.MaxAttempts
}

// Conn is a broker.Client. Publishing shares one confirm-mode channel;
// each subscription runs its own supervised consumer connection.
type Conn struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	returns  <-chan amqp.Return
	closed   bool
	cancels  []context.CancelFunc
	children sync.WaitGroup
}

var _ broker.Client = (*Conn)(nil)

// Dial connects the publishing channel and declares the exchanges.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &Conn{
		cfg: cfg.withDefaults(),
		log: log.With().Str("component", "rabbitmq").Logger(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	c.log.Info().Str("exchange", c.cfg.Exchange).Msg("rabbitmq publisher ready (confirm+mandatory enabled)")
	return c, nil
}

func (c *Conn) connectLocked() error {
	c.closePublisherLocked()

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("publish channel: %w", err)
	}
	if err := declareExchanges(ch, c.cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("publisher confirm enable: %w", err)
	}

	c.conn = conn
	c.ch = ch
	c.returns = ch.NotifyReturn(make(chan amqp.Return, 16))
	return nil
}

func declareExchanges(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare (%s): %w", cfg.Exchange, err)
	}
	if err := ch.ExchangeDeclare(cfg.dlx(), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("dlx exchange declare (%s): %w", cfg.dlx(), err)
	}
	return nil
}

// Publish sends body to the exchange with subject as routing key and waits
// for the broker confirm. Unroutable messages are errors.
func (c *Conn) Publish(ctx context.Context, subject, messageID string, body []byte) error {
	if strings.TrimSpace(subject) == "" {
		return errors.New("rabbitmq: missing subject")
	}
	if strings.TrimSpace(messageID) == "" {
		return errors.New("rabbitmq: missing message id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return broker.ErrClosed
	}
	if c.ch == nil || c.ch.IsClosed() {
		if err := c.connectLocked(); err != nil {
			publishedTotal.WithLabelValues(subject, "error").Inc()
			return err
		}
	}

	err := publishConfirmed(ctx, c.ch, c.returns, c.cfg.PublishTimeout, c.cfg.Exchange, subject, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		AppId:        c.cfg.AppID,
		Body:         body,
	})
	if err != nil {
		publishedTotal.WithLabelValues(subject, "error").Inc()
		return err
	}
	publishedTotal.WithLabelValues(subject, "ok").Inc()
	return nil
}

// publishConfirmed publishes with mandatory set and waits for the confirm.
// A basic.return for an unroutable message always precedes its ack.
func publishConfirmed(ctx context.Context, ch *amqp.Channel, returns <-chan amqp.Return, timeout time.Duration, exchange, key string, msg amqp.Publishing) error {
	if !drainReturns(returns) {
		return fmt.Errorf("publish %s: %w", key, errReturnsClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, true, false, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: nack", key)
	}

	select {
	case ret, ok := <-returns:
		if !ok {
			return fmt.Errorf("publish %s: %w", key, errReturnsClosed)
		}
		return fmt.Errorf("NO_ROUTE: code=%d text=%s exchange=%s rk=%s", ret.ReplyCode, ret.ReplyText, ret.Exchange, ret.RoutingKey)
	default:
		return nil
	}
}

var errReturnsClosed = errors.New("channel closed")

// drainReturns discards stale returns. It reports false once the channel
// has been closed by a channel shutdown.
func drainReturns(returns <-chan amqp.Return) bool {
	for {
		select {
		case _, ok := <-returns:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

// Subscribe declares the subscription's topology, then consumes under a
// supervisor that reconnects with backoff until ctx ends or Close is called.
func (c *Conn) Subscribe(ctx context.Context, sub broker.Subscription, h broker.Handler) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if h == nil {
		return errors.New("rabbitmq: nil handler")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return broker.ErrClosed
	}
	cctx, cancel := context.WithCancel(ctx)
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()

	cons := newConsumer(c.cfg, sub, h, c.log)
	if err := cons.connectAndDeclare(); err != nil {
		cancel()
		return err
	}

	c.children.Add(1)
	go func() {
		defer c.children.Done()
		cons.run(cctx)
	}()
	return nil
}

// Close stops all consumers and closes the publishing connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	c.children.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closePublisherLocked()
	return nil
}

func (c *Conn) closePublisherLocked() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.returns = nil
}
