package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"sms-scheduler/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer implements ports.TickConsumer using RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *slog.Logger
}

// NewConsumer dials RabbitMQ, declares topology, and returns a Consumer.
func NewConsumer(amqpURL string, log *slog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// One tick at a time: runs of one worker never overlap.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch, log: log}, nil
}

// Consume registers a consumer on the tick queue and calls handler for each delivery.
// A failed run is not requeued: the next tick picks up whatever is still pending.
// It blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, tick ports.Tick) error) error {
	deliveries, err := c.channel.Consume(
		tickQueue,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			var tick ports.Tick
			if err := json.Unmarshal(d.Body, &tick); err != nil {
				c.log.Error("unmarshal tick", "err", err)
				d.Nack(false, false) // malformed payloads are dropped
				continue
			}

			if err := handler(ctx, tick); err != nil {
				c.log.Error("tick handler error", "tick_id", tick.ID, "err", err)
			}
			d.Ack(false)
		}
	}
}

// Close cleanly shuts down the channel and connection.
func (c *Consumer) Close() {
	c.channel.Close()
	c.conn.Close()
}
