package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sms-scheduler/internal/domain"
	"sms-scheduler/internal/ports"
)

// IntakeService validates and stores newly scheduled messages.
type IntakeService struct {
	repo  ports.MessageRepository
	log   *slog.Logger
	grace time.Duration
	now   func() time.Time
}

// NewIntakeService wires the service with its dependencies. grace is how far
// in the past a send time may be and still count as "now".
func NewIntakeService(repo ports.MessageRepository, log *slog.Logger, grace time.Duration) *IntakeService {
	return &IntakeService{
		repo:  repo,
		log:   log,
		grace: grace,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateMessageRequest is the input for scheduling a message.
type CreateMessageRequest struct {
	UserID     string
	Content    string
	Recipients []domain.RecipientDraft
}

// CreateMessage validates the request and persists the Message with all its
// Recipients in one transaction. Validation failures are returned as
// *domain.ValidationError and nothing is written.
func (s *IntakeService) CreateMessage(ctx context.Context, req CreateMessageRequest) (domain.Message, error) {
	if req.UserID == "" {
		return domain.Message{}, domain.ErrMissingUser
	}

	draft := domain.MessageDraft{Content: req.Content, Recipients: req.Recipients}
	recipients, err := draft.Validate(s.now(), s.grace)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.NewMessage(req.UserID, req.Content, recipients)
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("save message: %w", err)
	}

	s.log.Info("message scheduled", "message_id", msg.ID, "user_id", msg.UserID, "recipients", len(msg.Recipients))
	return msg, nil
}

// ListMessages returns the user's messages, newest first.
func (s *IntakeService) ListMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	msgs, err := s.repo.ListMessagesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
