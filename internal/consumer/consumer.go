// Package consumer reads trigger events from an AMQP queue.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ogulcanaydogan/basket-guardian/internal/triggers"
)

const (
	reconnectDelay       = 2 * time.Second
	maxReconnectAttempts = 10
)

// Config holds broker settings.
type Config struct {
	URL            string
	Queue          string
	Prefetch       int
	Workers        int
	MessageTimeout time.Duration
}

// Dispatcher handles one decoded event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev triggers.Event) error
}

// Consumer feeds queued events to a Dispatcher with a pool of workers.
type Consumer struct {
	cfg      Config
	dispatch Dispatcher
	logger   *slog.Logger

	// connect runs one broker session and reports whether it got as far as
	// consuming.
	connect func(ctx context.Context) (bool, error)
	backoff time.Duration
}

// New validates cfg, applies defaults and returns an unconnected consumer.
func New(cfg Config, dispatch Dispatcher, logger *slog.Logger) (*Consumer, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, errors.New("amqp url and queue are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Workers
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{cfg: cfg, dispatch: dispatch, logger: logger, backoff: reconnectDelay}
	c.connect = c.session
	return c, nil
}

// Run consumes until ctx is cancelled, reconnecting with a linear backoff
// when the session ends. Attempts are counted per outage: a session that
// reached the consuming state resets the count.
func (c *Consumer) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := c.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempt = 0
		}
		attempt++
		if attempt > maxReconnectAttempts {
			return fmt.Errorf("giving up after %d reconnect attempts: %w", maxReconnectAttempts, err)
		}
		delay := c.backoff * time.Duration(attempt)
		c.logger.Warn("amqp session ended, reconnecting", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

// session runs one connection lifetime.
func (c *Consumer) session(ctx context.Context) (bool, error) {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return false, fmt.Errorf("dial amqp: %w", err)
	}
	defer conn.Close()
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return false, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return false, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}
	c.logger.Info("consuming events", "queue", c.cfg.Queue, "workers", c.cfg.Workers)

	return true, c.consume(ctx, msgs, connClosed, chClosed)
}

// consume runs the worker pool until ctx is cancelled, the connection or
// channel closes, or every worker has stopped because msgs was closed.
// It returns nil only on cancellation.
func (c *Consumer) consume(ctx context.Context, msgs <-chan amqp.Delivery, connClosed, chClosed <-chan *amqp.Error) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(workCtx, msgs, id)
		}(i)
	}
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-ctx.Done():
	case amqpErr := <-connClosed:
		err = closeError("connection", amqpErr)
	case amqpErr := <-chClosed:
		err = closeError("channel", amqpErr)
	case <-drained:
		err = errors.New("delivery channel closed")
	}
	cancel()
	<-drained
	return err
}

func closeError(what string, amqpErr *amqp.Error) error {
	if amqpErr == nil {
		return fmt.Errorf("%s closed", what)
	}
	return fmt.Errorf("%s closed: %w", what, amqpErr)
}

func (c *Consumer) worker(ctx context.Context, msgs <-chan amqp.Delivery, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Debug("delivery channel closed", "worker_id", id)
				return
			}
			c.handle(ctx, msg)
		}
	}
}

// handle dispatches one delivery. Bodies that are not events are dropped
// without requeue; dispatch failures are requeued for another attempt.
func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MessageTimeout)
	defer cancel()

	ev, err := triggers.ParseEvent(msg.Body)
	if err != nil {
		c.logger.Error("malformed message", "error", err, "body", string(msg.Body))
		_ = msg.Nack(false, false)
		return
	}
	if ev.ID == "" {
		ev.ID = msg.MessageId
	}

	if err := c.dispatch.Dispatch(ctx, ev); err != nil {
		c.logger.Warn("requeueing event", "event_type", ev.Type, "event_id", ev.ID, "error", err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
