package ports

import (
	"context"
	"time"

	"sms-scheduler/internal/domain"
)

// Tick asks a dispatch worker to run once.
type Tick struct {
	ID       string    `json:"tick_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// ReportPublisher publishes run summaries to the operator channel.
type ReportPublisher interface {
	PublishReport(ctx context.Context, summary domain.Summary) error
}

// TickPublisher publishes dispatch ticks.
type TickPublisher interface {
	PublishTick(ctx context.Context, tick Tick) error
}

// TickConsumer consumes dispatch ticks.
type TickConsumer interface {
	// Consume starts delivery of ticks; each is passed to the handler.
	// Blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, handler func(ctx context.Context, tick Tick) error) error
}
