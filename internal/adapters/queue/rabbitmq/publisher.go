package rabbitmq

import (
	"context"
	"fmt"

	"sms-scheduler/internal/domain"
	"sms-scheduler/internal/ports"

	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const exchangeName = "sms.dispatch"

const (
	tickQueue   = "sms.dispatch.tick"
	tickKey     = "dispatch.tick"
	reportQueue = "sms.dispatch.report"
	reportKey   = "dispatch.report"
)

// Publisher implements ports.TickPublisher and ports.ReportPublisher using RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher dials RabbitMQ, declares the exchange and queues, and binds them.
func NewPublisher(amqpURL string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

// PublishTick asks any listening dispatch worker to run once.
func (p *Publisher) PublishTick(ctx context.Context, tick ports.Tick) error {
	body, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	// Ticks are cheap and superseded by the next one, so they are not persisted.
	return p.publish(ctx, tickKey, tick.ID, amqp.Transient, body)
}

// PublishReport sends a run summary to the operator report queue.
func (p *Publisher) PublishReport(ctx context.Context, summary domain.Summary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return p.publish(ctx, reportKey, summary.RunID.String(), amqp.Persistent, body)
}

func (p *Publisher) publish(ctx context.Context, key, id string, mode uint8, body []byte) error {
	err := p.channel.PublishWithContext(
		ctx,
		exchangeName,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: mode,
			MessageId:    id,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close cleanly shuts down the channel and connection.
func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

// declare idempotently sets up the exchange, queues, and bindings.
func declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	bindings := []struct{ queue, key string }{
		{tickQueue, tickKey},
		{reportQueue, reportKey},
	}
	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}
