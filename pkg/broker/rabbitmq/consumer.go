package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/baechuer/tour-booking/pkg/appctx"
	"github.com/baechuer/tour-booking/pkg/broker"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type consumer struct {
	cfg     Config
	sub     broker.Subscription
	queue   string
	handler broker.Handler
	lg      zerolog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	chConsume  *amqp.Channel
	chPublish  *amqp.Channel
	returns    <-chan amqp.Return
	deliveries <-chan amqp.Delivery
}

func newConsumer(cfg Config, sub broker.Subscription, h broker.Handler, lg zerolog.Logger) *consumer {
	q := sub.Queue()
	return &consumer{
		cfg:     cfg,
		sub:     sub,
		queue:   q,
		handler: h,
		lg:      lg.With().Str("queue", q).Str("subject", sub.Subject).Logger(),
	}
}

func (c *consumer) run(ctx context.Context) {
	defer c.closeConn()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		c.consumeLoop(ctx)

		select {
		case <-ctx.Done():
			c.lg.Info().Msg("consumer supervisor exiting (ctx cancelled)")
			return
		default:
		}

		c.lg.Warn().Dur("backoff", backoff).Msg("deliveries closed; reconnecting")
		for {
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)

			err := c.connectAndDeclare()
			if err == nil {
				backoff = 1 * time.Second
				break
			}
			if isPreconditionFailed(err) {
				c.lg.Error().Err(err).Msg("FATAL: topology precondition failed. Delete and recreate MQ resources, then restart.")
				return
			}
			c.lg.Error().Err(err).Dur("backoff", backoff).Msg("connectAndDeclare failed; retrying")
		}
	}
}

func (c *consumer) connectAndDeclare() error {
	c.closeConn()

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	chConsume, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("consume channel: %w", err)
	}
	chPublish, err := conn.Channel()
	if err != nil {
		closeAll(conn, chConsume, nil)
		return fmt.Errorf("publish channel: %w", err)
	}

	if err := declareTopology(chConsume, c.cfg, c.sub.Subject, c.queue); err != nil {
		closeAll(conn, chConsume, chPublish)
		return err
	}
	if err := chConsume.Qos(c.cfg.Prefetch, 0, false); err != nil {
		closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("qos: %w", err)
	}
	if err := chPublish.Confirm(false); err != nil {
		closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("retry publisher confirm enable: %w", err)
	}
	returns := chPublish.NotifyReturn(make(chan amqp.Return, 16))

	dlv, err := chConsume.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("consume: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.chConsume = chConsume
	c.chPublish = chPublish
	c.returns = returns
	c.deliveries = dlv
	c.mu.Unlock()

	c.lg.Info().
		Str("exchange", c.cfg.Exchange).
		Int("prefetch", c.cfg.Prefetch).
		Dur("retry_delay", c.cfg.RetryDelay).
		Dur("retry_max_delay", c.cfg.RetryMaxDelay).
		Int("max_attempts", c.cfg.MaxAttempts).
		Msg("rabbitmq consumer ready")
	return nil
}

// declareTopology declares the main queue, its retry queue and its dead-letter queue.
func declareTopology(ch *amqp.Channel, cfg Config, subject, queue string) error {
	if err := declareExchanges(ch, cfg); err != nil {
		return err
	}

	mainArgs := amqp.Table{
		"x-dead-letter-exchange":    cfg.dlx(),
		"x-dead-letter-routing-key": queue,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, mainArgs); err != nil {
		return fmt.Errorf("main queue declare (%s): %w", queue, err)
	}
	if err := ch.QueueBind(queue, subject, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("main queue bind (%s): %w", subject, err)
	}

	dlq := queue + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("dlq declare (%s): %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, queue, cfg.dlx(), false, nil); err != nil {
		return fmt.Errorf("dlq bind (%s): %w", dlq, err)
	}

	retryArgs := amqp.Table{
		"x-message-ttl":             int64(cfg.RetryMaxDelay / time.Millisecond),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
	if _, err := ch.QueueDeclare(queue+".retry", true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("retry queue declare (%s.retry): %w", queue, err)
	}
	return nil
}

func (c *consumer) consumeLoop(ctx context.Context) {
	c.mu.Lock()
	deliveries := c.deliveries
	c.mu.Unlock()
	if deliveries == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				c.lg.Warn().Msg("deliveries channel closed")
				return
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	msg := toMessage(d)
	start := time.Now()

	hctx := appctx.WithRequestID(ctx, msg.ID)
	res := broker.Invoke(hctx, c.handler, msg)
	handleDuration.WithLabelValues(msg.Subject).Observe(time.Since(start).Seconds())

	lg := c.lg.With().
		Str("message_id", msg.ID).
		Str("routing_key", msg.Subject).
		Int("attempt", msg.Attempt).
		Logger()

	switch res.Action {
	case broker.ActionAck:
		_ = d.Ack(false)
		handledTotal.WithLabelValues(msg.Subject, c.queue, "ack").Inc()
		lg.Debug().Dur("took", time.Since(start)).Msg("message processed")

	case broker.ActionRetry:
		next := msg.Attempt + 1
		if c.cfg.exhausted(next) {
			_ = d.Nack(false, false)
			handledTotal.WithLabelValues(msg.Subject, c.queue, "exhausted").Inc()
			lg.Error().Err(res.Err).Msg("max attempts exceeded; dead-lettered")
			return
		}
		if err := c.publishRetry(ctx, d, msg.Subject, next); err != nil {
			_ = d.Nack(false, true)
			handledTotal.WithLabelValues(msg.Subject, c.queue, "requeue").Inc()
			lg.Warn().Err(err).AnErr("cause", res.Err).Msg("republish retry failed; requeue=true")
			return
		}
		_ = d.Ack(false)
		handledTotal.WithLabelValues(msg.Subject, c.queue, "retry").Inc()
		lg.Info().Err(res.Err).Dur("retry_in", c.cfg.retryDelay(next)).Msg("retry scheduled")

	default:
		_ = d.Nack(false, false)
		handledTotal.WithLabelValues(msg.Subject, c.queue, "reject").Inc()
		lg.Error().Err(res.Err).Msg("rejected; dead-lettered")
	}
}

func (c *consumer) publishRetry(ctx context.Context, d amqp.Delivery, subject string, attempt int) error {
	c.mu.Lock()
	ch, returns := c.chPublish, c.returns
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("retry channel not ready")
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[headerRetryCount] = int32(attempt)
	headers[headerOriginalKey] = subject

	return publishConfirmed(ctx, ch, returns, c.cfg.PublishTimeout, "", c.queue+".retry", amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		AppId:        d.AppId,
		Expiration:   strconv.FormatInt(c.cfg.retryDelay(attempt).Milliseconds(), 10),
		Headers:      headers,
		Body:         d.Body,
	})
}

func toMessage(d amqp.Delivery) broker.Message {
	subject := d.RoutingKey
	if v, ok := d.Headers[headerOriginalKey].(string); ok && v != "" {
		subject = v
	}
	return broker.Message{
		Subject:     subject,
		ID:          d.MessageId,
		Body:        d.Body,
		Attempt:     getAttempt(d.Headers),
		Redelivered: d.Redelivered,
	}
}

func getAttempt(h amqp.Table) int {
	if h == nil {
		return 0
	}
	v, ok := h[headerRetryCount]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case int:
		return t
	case int16:
		return int(t)
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func (c *consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	closeAll(c.conn, c.chConsume, c.chPublish)
	c.conn, c.chConsume, c.chPublish = nil, nil, nil
	c.deliveries = nil
	c.returns = nil
}

func closeAll(conn *amqp.Connection, a, b *amqp.Channel) {
	if b != nil {
		_ = b.Close()
	}
	if a != nil {
		_ = a.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "PRECONDITION_FAILED") || strings.Contains(msg, "INEQUIVALENT ARG")
}
