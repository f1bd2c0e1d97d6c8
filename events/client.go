/*
client.go - AMQP publish/consume plumbing for invalidation events

PURPOSE:
  Connects to the broker, declares a durable direct exchange and queue,
  and binds them. The publisher side is used by mutation handlers; the
  consumer side feeds cache invalidation.

DELIVERY SEMANTICS:
  Invalidation is idempotent, so at-least-once delivery is fine: a
  redelivered event clears an already-clear cache. Handler failures nack
  with requeue so a transient cache-store outage retries.
*/
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Invalidator is the slice of the revenue service the consumer needs.
type Invalidator interface {
	Invalidate(ctx context.Context, tenant, property string) error
}

// Client wraps one AMQP connection and channel.
type Client struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string
	logger   *zap.Logger
}

// NewClient dials the broker and declares the exchange/queue pair.
func NewClient(url, exchange, queue string, logger *zap.Logger) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	client := &Client{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		queue:    queue,
		logger:   logger,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchange, // name
		"direct",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := c.channel.QueueBind(c.queue, c.queue, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishReservationChanged sends one event, assigning an event ID when
// the caller did not.
func (c *Client) PublishReservationChanged(ctx context.Context, msg ReservationChanged) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}

	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = c.channel.PublishWithContext(ctx,
		c.exchange, // exchange
		c.queue,    // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.EventID,
			Timestamp:    msg.OccurredAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Consume processes invalidation events until ctx is done or the delivery
// stream closes.
func (c *Client) Consume(ctx context.Context, invalidator Invalidator) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx,
		c.queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := dispatch(ctx, d.Body, invalidator); err != nil {
				c.logger.Warn("invalidation event failed",
					zap.String("message_id", d.MessageId),
					zap.Error(err))
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// dispatch decodes one event body and applies the invalidation. Split out
// so the handling logic is testable without a broker.
func dispatch(ctx context.Context, body []byte, invalidator Invalidator) error {
	msg, err := DecodeReservationChanged(body)
	if err != nil {
		return err
	}
	return invalidator.Invalidate(ctx, msg.TenantID, msg.PropertyID)
}

// Close tears down the channel and connection.
func (c *Client) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
