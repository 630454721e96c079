package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DeliveryState is the derived lifecycle state of a Recipient.
type DeliveryState string

const (
	StatePending DeliveryState = "pending" // Waiting for its send time or the next run
	StateSent    DeliveryState = "sent"    // Accepted by the SMS gateway
	StateFailed  DeliveryState = "failed"  // Rejected or unreachable; never retried
	StateUnknown DeliveryState = "unknown" // Claimed by a run but no outcome recorded
)

// Message is the text a user scheduled for one or more recipients.
// It is immutable once created.
type Message struct {
	ID         uuid.UUID
	UserID     string
	Content    string
	CreatedAt  time.Time
	Recipients []Recipient
}

// Recipient is a single delivery task for its parent Message.
type Recipient struct {
	ID                uuid.UUID
	MessageID         uuid.UUID
	Name              string
	Phone             string
	SendAt            time.Time
	Sent              bool
	SentAt            *time.Time // When a run claimed the recipient
	CompletedAt       *time.Time // When the attempt's outcome was recorded
	ProviderMessageID string
	LastError         string
	DeliveryStatus    string // Latest receipt status reported by the provider
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DueAt reports whether the recipient is eligible for dispatch at now.
func (r Recipient) DueAt(now time.Time) bool {
	return !r.Sent && !r.SendAt.After(now)
}

// DeliveryState derives the recipient's state from its persisted fields.
func (r Recipient) DeliveryState() DeliveryState {
	switch {
	case !r.Sent:
		return StatePending
	case r.CompletedAt == nil:
		return StateUnknown
	case r.LastError != "":
		return StateFailed
	default:
		return StateSent
	}
}

// DueRecipient pairs an eligible recipient with its parent message content.
type DueRecipient struct {
	Recipient Recipient
	Content   string
}

// Outcome is what a dispatch attempt recorded for a recipient.
type Outcome struct {
	Success           bool
	ProviderMessageID string
	Error             string
	CompletedAt       time.Time
}

// NewMessage builds a Message with generated IDs. Every recipient starts unsent.
func NewMessage(userID, content string, recipients []Recipient) Message {
	now := time.Now().UTC()
	msg := Message{
		ID:         uuid.New(),
		UserID:     userID,
		Content:    content,
		CreatedAt:  now,
		Recipients: make([]Recipient, 0, len(recipients)),
	}
	for _, r := range recipients {
		msg.Recipients = append(msg.Recipients, Recipient{
			ID:        uuid.New(),
			MessageID: msg.ID,
			Name:      r.Name,
			Phone:     r.Phone,
			SendAt:    r.SendAt.UTC(),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return msg
}

// Domain errors
var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrAlreadySent       = errors.New("recipient already sent")
	ErrInvalidStatus     = errors.New("invalid delivery status")
	ErrMissingUser       = errors.New("missing user id")
)
