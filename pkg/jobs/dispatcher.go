package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	appErrors "github.com/finguru/backend-api/pkg/errors"
	"github.com/finguru/backend-api/pkg/middleware/requestid"
)

type brokerChannel interface {
	DeclareDurableQueue(name string) error
	PublishConfirmed(ctx context.Context, queue string, msg amqp.Publishing) error
	Close() error
}

type brokerConnection interface {
	Channel() (brokerChannel, error)
	Close() error
}

// DialFunc opens a broker connection within the given timeout.
type DialFunc func(url string, timeout time.Duration) (brokerConnection, error)

// DispatcherConfig configures the AMQP publisher.
type DispatcherConfig struct {
	URL     string
	Timeout time.Duration
	Logger  *zap.Logger
	Dial    DialFunc
}

// Dispatcher publishes jobs to durable RabbitMQ queues. Every publish opens
// and closes its own connection; no broker state is kept between calls.
type Dispatcher struct {
	url     string
	timeout time.Duration
	logger  *zap.Logger
	dial    DialFunc
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Dial == nil {
		cfg.Dial = DialAMQP
	}
	return &Dispatcher{url: cfg.URL, timeout: cfg.Timeout, logger: cfg.Logger, dial: cfg.Dial}
}

// Publish sends payload as a persistent JSON message to queue.
func (d *Dispatcher) Publish(ctx context.Context, queue string, payload interface{}) error {
	return d.PublishWithID(ctx, queue, uuid.NewString(), payload)
}

// PublishWithID is Publish with a caller-chosen AMQP message id, which
// consumers may use to discard redeliveries. Any failure is returned as
// ErrDispatch; the caller must treat the job as not started.
func (d *Dispatcher) PublishWithID(ctx context.Context, queue, messageID string, payload interface{}) error {
	err := d.publish(ctx, queue, messageID, payload)
	if err != nil {
		d.logger.Error("job publish failed",
			zap.String("queue", queue),
			zap.String("message_id", messageID),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Error(err),
		)
		return appErrors.WrapAs(err, appErrors.ErrDispatch)
	}
	d.logger.Debug("job published", zap.String("queue", queue), zap.String("message_id", messageID))
	return nil
}

// publish returns nil once the broker has confirmed the message. Close errors
// after that point are only logged: failing would invite a duplicate retry.
func (d *Dispatcher) publish(ctx context.Context, queue, messageID string, payload interface{}) (err error) {
	if queue == "" {
		return errors.New("queue name is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	confirmed := false
	closeQuietly := func(what string, closer func() error) {
		cerr := closer()
		switch {
		case cerr == nil:
		case confirmed:
			d.logger.Warn("broker close failed after confirm",
				zap.String("queue", queue),
				zap.String("message_id", messageID),
				zap.String("resource", what),
				zap.Error(cerr),
			)
		case err == nil:
			err = fmt.Errorf("close %s: %w", what, cerr)
		}
	}

	conn, err := d.dial(d.url, d.timeout)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer closeQuietly("connection", conn.Close)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer closeQuietly("channel", ch.Close)

	if err := ch.DeclareDurableQueue(queue); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     messageID,
		CorrelationId: requestid.FromContext(ctx),
		Timestamp:     time.Now().UTC(),
		Body:          body,
	}
	if err := ch.PublishConfirmed(ctx, queue, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	confirmed = true
	return nil
}

// DialAMQP is the production DialFunc backed by amqp091-go.
func DialAMQP(url string, timeout time.Duration) (brokerConnection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial:      amqp.DefaultDial(timeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (brokerChannel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (c *amqpChannel) DeclareDurableQueue(name string) error {
	_, err := c.ch.QueueDeclare(name, true, false, false, false, nil)
	return err
}

// PublishConfirmed publishes in confirm mode and waits for the broker ack, so
// a nil return means the broker has taken responsibility for the message.
func (c *amqpChannel) PublishConfirmed(ctx context.Context, queue string, msg amqp.Publishing) error {
	if err := c.ch.Confirm(false); err != nil {
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	confirms := c.ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := c.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case confirm, ok := <-confirms:
		if !ok {
			return errors.New("channel closed before confirmation")
		}
		if !confirm.Ack {
			return errors.New("broker rejected message")
		}
		return nil
	}
}

func (c *amqpChannel) Close() error {
	return c.ch.Close()
}
