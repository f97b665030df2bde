package email

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/dhernos/vestri-auth/internal/config"
)

const routingKey = "email.send"

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// QueuePublisher hands messages to RabbitMQ; a QueueConsumer in the mailer
// process performs the actual delivery.
type QueuePublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  publishChannel
	closer   func() error
	exchange string
}

func NewQueuePublisher(cfg config.AMQPConfig) (*QueuePublisher, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &QueuePublisher{conn: conn, channel: ch, closer: ch.Close, exchange: cfg.Exchange}, nil
}

func (p *QueuePublisher) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
		DeliveryMode: amqp091.Persistent,
	})
}

func (p *QueuePublisher) Close() {
	if p.closer != nil {
		_ = p.closer()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// QueueConsumer drains the email queue into a Notifier. Transient failures
// are requeued until maxAttempts; permanent SMTP rejections, exhausted
// messages and malformed payloads are dropped. Without a RetryCounter a
// message gets a single redelivery.
type QueueConsumer struct {
	conn        *amqp091.Connection
	channel     *amqp091.Channel
	queue       string
	target      Notifier
	retries     *RetryCounter
	maxAttempts int64
	logger      *zap.Logger
}

func NewQueueConsumer(cfg config.AMQPConfig, target Notifier, retries *RetryCounter, logger *zap.Logger) (*QueueConsumer, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &QueueConsumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Queue,
		target:      target,
		retries:     retries,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *QueueConsumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "mailer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.logger.Info("email consumer started", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.process(ctx, d)
		}
	}
}

func (c *QueueConsumer) process(ctx context.Context, d amqp091.Delivery) {
	var m Message
	if err := json.Unmarshal(d.Body, &m); err != nil || m.To == "" {
		c.logger.Error("dropping malformed email payload", zap.Error(err), zap.Int("size", len(d.Body)))
		if err := d.Reject(false); err != nil {
			c.logger.Error("reject failed", zap.Error(err))
		}
		return
	}

	key := retryKey(d)
	if err := c.target.Send(ctx, m); err != nil {
		attempt := c.attempt(ctx, key, d)
		fields := []zap.Field{
			zap.String("template", m.Template),
			zap.String("message_id", d.MessageId),
			zap.Int64("attempt", attempt),
			zap.Error(err),
		}

		if isPermanent(err) || attempt >= c.limit() {
			c.logger.Error("dropping undeliverable email", fields...)
			c.resetAttempts(ctx, key)
			if err := d.Reject(false); err != nil {
				c.logger.Error("reject failed", zap.Error(err))
			}
			return
		}

		c.logger.Warn("email delivery failed, requeueing", fields...)
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("nack failed", zap.Error(err))
		}
		return
	}

	c.resetAttempts(ctx, key)
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", zap.Error(err))
	}
}

// attempt returns the number of failed deliveries of d including this one.
func (c *QueueConsumer) attempt(ctx context.Context, key string, d amqp091.Delivery) int64 {
	if c.retries != nil {
		n, err := c.retries.IncrementAndGet(ctx, key)
		if err == nil {
			return n
		}
		c.logger.Warn("retry counter unavailable", zap.Error(err))
	}
	if d.Redelivered {
		return c.limit()
	}
	return 1
}

func (c *QueueConsumer) limit() int64 {
	if c.maxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.maxAttempts
}

func (c *QueueConsumer) resetAttempts(ctx context.Context, key string) {
	if c.retries == nil {
		return
	}
	if err := c.retries.Reset(ctx, key); err != nil {
		c.logger.Warn("retry counter reset failed", zap.Error(err))
	}
}

func (c *QueueConsumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func declareTopology(ch *amqp091.Channel, cfg config.AMQPConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}
