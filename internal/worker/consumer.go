package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/finguru/backend-api/pkg/jobs"
)

type jobPool interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// ConsumerConfig configures the broker side of the worker.
type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
	Logger   *zap.Logger
}

// Consumer moves deliveries from a durable RabbitMQ queue into a job pool and
// settles each delivery once its job finishes.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	pool     jobPool
	logger   *zap.Logger
}

// NewConsumer constructs a Consumer feeding pool.
func NewConsumer(pool jobPool, cfg ConsumerConfig) *Consumer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.Queue == "" {
		cfg.Queue = "transaction-sync"
	}
	return &Consumer{url: cfg.URL, queue: cfg.Queue, prefetch: cfg.Prefetch, pool: pool, logger: cfg.Logger}
}

// Run consumes until ctx is cancelled or the broker closes the channel.
// Unsettled deliveries are returned to the queue by the broker on disconnect.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started", zap.String("queue", c.queue), zap.Int("prefetch", c.prefetch))
	return c.consume(ctx, deliveries)
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch hands a delivery to the pool. Only the publisher's MessageId becomes
// the job ID; delivery tags restart on every channel and cannot identify a job.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	label := d.MessageId
	if label == "" {
		label = "tag-" + strconv.FormatUint(d.DeliveryTag, 10)
	}
	job := jobs.Job{
		ID:   d.MessageId,
		Type: c.queue,
		Body: d.Body,
		Done: func(err error) { c.settle(d, label, err) },
	}
	if err := c.pool.Enqueue(ctx, job); err != nil {
		c.logger.Warn("job pool rejected delivery", zap.String("delivery", label), zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("nack failed", zap.String("delivery", label), zap.Error(nackErr))
		}
	}
}

// settle acks finished jobs and drops failed ones without requeue; the pool
// has already spent its retries.
func (c *Consumer) settle(d amqp.Delivery, label string, err error) {
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("ack failed", zap.String("delivery", label), zap.Error(ackErr))
		}
		return
	}
	c.logger.Error("dropping sync job", zap.String("delivery", label), zap.Bool("malformed", errors.Is(err, ErrMalformedJob)), zap.Error(err))
	if nackErr := d.Nack(false, false); nackErr != nil {
		c.logger.Error("nack failed", zap.String("delivery", label), zap.Error(nackErr))
	}
}
