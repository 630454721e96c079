package postgres

import (
	"time"

	"sms-scheduler/internal/domain"

	"github.com/google/uuid"
)

type messageModel struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserID     string           `gorm:"type:varchar(64);not null;index"`
	Content    string           `gorm:"type:varchar(1600);not null"`
	CreatedAt  time.Time        `gorm:"not null;index"`
	Recipients []recipientModel `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

func (messageModel) TableName() string { return "messages" }

type recipientModel struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey"`
	MessageID         uuid.UUID     `gorm:"type:uuid;not null;index"`
	Message           *messageModel `gorm:"foreignKey:MessageID"`
	Name              string        `gorm:"type:varchar(100)"`
	Phone             string        `gorm:"type:varchar(20);not null"`
	SendAt            time.Time     `gorm:"not null;index:idx_recipients_due,priority:2"`
	Sent              bool          `gorm:"not null;default:false;index:idx_recipients_due,priority:1"`
	SentAt            *time.Time
	CompletedAt       *time.Time
	ProviderMessageID string `gorm:"type:varchar(64);index"`
	LastError         string `gorm:"type:text"`
	DeliveryStatus    string `gorm:"type:varchar(20)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (recipientModel) TableName() string { return "recipients" }

func toMessageModel(m domain.Message) messageModel {
	out := messageModel{
		ID:         m.ID,
		UserID:     m.UserID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		Recipients: make([]recipientModel, 0, len(m.Recipients)),
	}
	for _, r := range m.Recipients {
		out.Recipients = append(out.Recipients, recipientModel{
			ID:        r.ID,
			MessageID: m.ID,
			Name:      r.Name,
			Phone:     r.Phone,
			SendAt:    r.SendAt,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out
}

func (m messageModel) toDomain() domain.Message {
	out := domain.Message{
		ID:         m.ID,
		UserID:     m.UserID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		Recipients: make([]domain.Recipient, 0, len(m.Recipients)),
	}
	for _, r := range m.Recipients {
		out.Recipients = append(out.Recipients, r.toDomain())
	}
	return out
}

func (r recipientModel) toDomain() domain.Recipient {
	return domain.Recipient{
		ID:                r.ID,
		MessageID:         r.MessageID,
		Name:              r.Name,
		Phone:             r.Phone,
		SendAt:            r.SendAt,
		Sent:              r.Sent,
		SentAt:            r.SentAt,
		CompletedAt:       r.CompletedAt,
		ProviderMessageID: r.ProviderMessageID,
		LastError:         r.LastError,
		DeliveryStatus:    r.DeliveryStatus,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}
