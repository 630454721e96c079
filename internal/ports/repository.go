package ports

import (
	"context"
	"time"

	"sms-scheduler/internal/domain"

	"github.com/google/uuid"
)

// MessageRepository defines persistence operations for messages and their recipients.
type MessageRepository interface {
	// CreateMessage persists a Message and all its Recipients atomically.
	CreateMessage(ctx context.Context, msg domain.Message) error

	// ListMessagesByUser returns the user's messages with recipients, newest first.
	ListMessagesByUser(ctx context.Context, userID string) ([]domain.Message, error)

	// FindDueRecipients returns every unsent recipient whose send time is at or
	// before now, paired with its message content. No pagination is applied.
	FindDueRecipients(ctx context.Context, now time.Time) ([]domain.DueRecipient, error)

	// MarkSent flips sent from false to true if and only if it is still false.
	// It returns domain.ErrAlreadySent when another run got there first.
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error

	// RecordOutcome stores the provider message id or the error of the attempt.
	RecordOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error

	// UpdateDeliveryStatusByProviderID stores a delivery receipt.
	UpdateDeliveryStatusByProviderID(ctx context.Context, providerMessageID string, status domain.ReceiptStatus) error

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
