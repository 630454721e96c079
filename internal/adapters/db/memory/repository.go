// Package memory is an in-process implementation of ports.MessageRepository.
// It is used by tests and by local runs with STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sms-scheduler/internal/domain"

	"github.com/google/uuid"
)

// Repository keeps messages and recipients in maps guarded by one mutex.
type Repository struct {
	mu         sync.RWMutex
	messages   map[uuid.UUID]domain.Message // Recipients field is left empty
	recipients map[uuid.UUID]domain.Recipient
	order      map[uuid.UUID][]uuid.UUID // message id -> recipient ids in insertion order
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		messages:   make(map[uuid.UUID]domain.Message),
		recipients: make(map[uuid.UUID]domain.Recipient),
		order:      make(map[uuid.UUID][]uuid.UUID),
	}
}

// CreateMessage stores the message and its recipients under a single lock,
// so readers never observe a partial recipient set.
func (r *Repository) CreateMessage(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	head := msg
	head.Recipients = nil
	r.messages[msg.ID] = head

	ids := make([]uuid.UUID, 0, len(msg.Recipients))
	for _, rc := range msg.Recipients {
		rc.MessageID = msg.ID
		r.recipients[rc.ID] = rc
		ids = append(ids, rc.ID)
	}
	r.order[msg.ID] = ids
	return nil
}

// ListMessagesByUser returns the user's messages newest first.
func (r *Repository) ListMessagesByUser(_ context.Context, userID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Message
	for _, m := range r.messages {
		if m.UserID != userID {
			continue
		}
		out = append(out, r.withRecipients(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetMessage returns a message with its recipients.
func (r *Repository) GetMessage(_ context.Context, id uuid.UUID) (domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.messages[id]
	if !ok {
		return domain.Message{}, domain.ErrMessageNotFound
	}
	return r.withRecipients(m), nil
}

// GetRecipient returns a copy of the recipient.
func (r *Repository) GetRecipient(_ context.Context, id uuid.UUID) (domain.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rc, ok := r.recipients[id]
	if !ok {
		return domain.Recipient{}, domain.ErrRecipientNotFound
	}
	return rc, nil
}

// FindDueRecipients returns every unsent recipient with SendAt <= now, oldest first.
func (r *Repository) FindDueRecipients(_ context.Context, now time.Time) ([]domain.DueRecipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []domain.DueRecipient
	for _, rc := range r.recipients {
		if !rc.DueAt(now) {
			continue
		}
		due = append(due, domain.DueRecipient{
			Recipient: rc,
			Content:   r.messages[rc.MessageID].Content,
		})
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Recipient.SendAt.Before(due[j].Recipient.SendAt)
	})
	return due, nil
}

// MarkSent flips sent to true only if it is still false.
func (r *Repository) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, ok := r.recipients[id]
	if !ok {
		return domain.ErrRecipientNotFound
	}
	if rc.Sent {
		return domain.ErrAlreadySent
	}
	at = at.UTC()
	rc.Sent = true
	rc.SentAt = &at
	rc.UpdatedAt = at
	r.recipients[id] = rc
	return nil
}

// RecordOutcome stores the attempt's provider id or error on a claimed recipient.
func (r *Repository) RecordOutcome(_ context.Context, id uuid.UUID, outcome domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, ok := r.recipients[id]
	if !ok {
		return domain.ErrRecipientNotFound
	}
	if !rc.Sent {
		return domain.ErrInvalidStatus
	}
	completed := outcome.CompletedAt.UTC()
	if outcome.CompletedAt.IsZero() {
		completed = time.Now().UTC()
	}
	rc.ProviderMessageID = outcome.ProviderMessageID
	rc.LastError = outcome.Error
	rc.CompletedAt = &completed
	rc.UpdatedAt = completed
	r.recipients[id] = rc
	return nil
}

// UpdateDeliveryStatusByProviderID stores a delivery receipt.
func (r *Repository) UpdateDeliveryStatusByProviderID(_ context.Context, providerMessageID string, status domain.ReceiptStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rc := range r.recipients {
		if providerMessageID == "" || rc.ProviderMessageID != providerMessageID {
			continue
		}
		rc.DeliveryStatus = string(status)
		rc.UpdatedAt = time.Now().UTC()
		r.recipients[id] = rc
		return nil
	}
	return domain.ErrRecipientNotFound
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *Repository) Close() error { return nil }

func (r *Repository) withRecipients(m domain.Message) domain.Message {
	ids := r.order[m.ID]
	m.Recipients = make([]domain.Recipient, 0, len(ids))
	for _, id := range ids {
		m.Recipients = append(m.Recipients, r.recipients[id])
	}
	return m
}
