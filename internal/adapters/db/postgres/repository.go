package postgres

import (
	"context"
	"fmt"
	"time"

	"sms-scheduler/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repository implements ports.MessageRepository using PostgreSQL through gorm.
type Repository struct {
	db *gorm.DB
}

// New opens a PostgreSQL connection and returns a Repository.
func New(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Repository{db: db}, nil
}

// NewFromDB wraps an already opened gorm session.
func NewFromDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the messages and recipients tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&messageModel{}, &recipientModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Ping checks the connection pool.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateMessage inserts the message and all its recipients inside a single transaction.
func (r *Repository) CreateMessage(ctx context.Context, msg domain.Message) error {
	model := toMessageModel(msg)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

// ListMessagesByUser returns the user's messages with their recipients, newest first.
func (r *Repository) ListMessagesByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	var models []messageModel
	err := r.db.WithContext(ctx).
		Preload("Recipients", func(db *gorm.DB) *gorm.DB { return db.Order("send_at ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, m.toDomain())
	}
	return msgs, nil
}

// FindDueRecipients returns every recipient with sent = false and
// send_at <= now together with its message content, oldest first.
func (r *Repository) FindDueRecipients(ctx context.Context, now time.Time) ([]domain.DueRecipient, error) {
	var rows []recipientModel
	err := r.db.WithContext(ctx).
		Preload("Message").
		Where("sent = ? AND send_at <= ?", false, now.UTC()).
		Order("send_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query due recipients: %w", err)
	}

	due := make([]domain.DueRecipient, 0, len(rows))
	for _, row := range rows {
		item := domain.DueRecipient{Recipient: row.toDomain()}
		if row.Message != nil {
			item.Content = row.Message.Content
		}
		due = append(due, item)
	}
	return due, nil
}

// MarkSent sets sent = true with a conditional update, so only one caller
// can ever win for a given recipient.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&recipientModel{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]any{
			"sent":       true,
			"sent_at":    at.UTC(),
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark sent: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	exists, err := r.recipientExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrRecipientNotFound
	}
	return domain.ErrAlreadySent
}

// RecordOutcome stores the provider id or error on a claimed recipient.
func (r *Repository) RecordOutcome(ctx context.Context, id uuid.UUID, outcome domain.Outcome) error {
	completed := outcome.CompletedAt.UTC()
	if outcome.CompletedAt.IsZero() {
		completed = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&recipientModel{}).
		Where("id = ? AND sent = ?", id, true).
		Updates(map[string]any{
			"provider_message_id": outcome.ProviderMessageID,
			"last_error":          outcome.Error,
			"completed_at":        completed,
			"updated_at":          completed,
		})
	if res.Error != nil {
		return fmt.Errorf("record outcome: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	exists, err := r.recipientExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrRecipientNotFound
	}
	return domain.ErrInvalidStatus
}

// UpdateDeliveryStatusByProviderID stores a delivery receipt by the provider's message id.
func (r *Repository) UpdateDeliveryStatusByProviderID(ctx context.Context, providerMessageID string, status domain.ReceiptStatus) error {
	if providerMessageID == "" {
		return domain.ErrRecipientNotFound
	}
	res := r.db.WithContext(ctx).
		Model(&recipientModel{}).
		Where("provider_message_id = ?", providerMessageID).
		Update("delivery_status", string(status))
	if res.Error != nil {
		return fmt.Errorf("update delivery status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRecipientNotFound
	}
	return nil
}

// GetRecipient loads a single recipient by id.
func (r *Repository) GetRecipient(ctx context.Context, id uuid.UUID) (domain.Recipient, error) {
	var row recipientModel
	res := r.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row)
	if res.Error != nil {
		return domain.Recipient{}, fmt.Errorf("get recipient: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Recipient{}, domain.ErrRecipientNotFound
	}
	return row.toDomain(), nil
}

func (r *Repository) recipientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&recipientModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count recipient: %w", err)
	}
	return n > 0, nil
}
