package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"sms-scheduler/internal/adapters/db/memory"
	"sms-scheduler/internal/domain"
	"sms-scheduler/internal/ports"
)

func TestHandleDLR(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()
	msg := schedule(t, repo, "Hi", recipientAt("+15551234567", now))
	id := msg.Recipients[0].ID
	_ = repo.MarkSent(ctx, id, now)
	_ = repo.RecordOutcome(ctx, id, domain.Outcome{Success: true, ProviderMessageID: "SM123"})

	svc := NewDeliveryReportService(repo, discardLogger())

	tests := []struct {
		name       string
		payload    ports.DLRPayload
		wantErr    error
		wantStatus string
	}{
		{"delivered", ports.DLRPayload{ProviderMessageID: "SM123", Status: "Delivered"}, nil, "delivered"},
		{"unknown status", ports.DLRPayload{ProviderMessageID: "SM123", Status: "teleported"}, domain.ErrInvalidStatus, "delivered"},
		{"unknown provider id", ports.DLRPayload{ProviderMessageID: "SM404", Status: "failed"}, domain.ErrRecipientNotFound, "delivered"},
		{"undelivered", ports.DLRPayload{ProviderMessageID: "SM123", Status: "undelivered"}, nil, "undelivered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.HandleDLR(ctx, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleDLR error = %v, want %v", err, tt.wantErr)
			}
			got := mustRecipient(t, repo, id)
			if got.DeliveryStatus != tt.wantStatus {
				t.Errorf("DeliveryStatus = %q, want %q", got.DeliveryStatus, tt.wantStatus)
			}
			if !got.Sent {
				t.Error("receipts must never reset the sent flag")
			}
		})
	}
}
