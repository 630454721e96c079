package app

import (
	"context"
	"fmt"
	"log/slog"

	"sms-scheduler/internal/domain"
	"sms-scheduler/internal/ports"
)

// DeliveryReportService records delivery receipts posted by the provider.
type DeliveryReportService struct {
	repo ports.MessageRepository
	log  *slog.Logger
}

// NewDeliveryReportService wires the receipt handler to the store.
func NewDeliveryReportService(repo ports.MessageRepository, log *slog.Logger) *DeliveryReportService {
	return &DeliveryReportService{repo: repo, log: log}
}

// HandleDLR processes a delivery receipt from the SMS provider webhook.
// Receipts only annotate a recipient; they never touch its sent flag.
func (s *DeliveryReportService) HandleDLR(ctx context.Context, dlr ports.DLRPayload) error {
	status, err := domain.ParseReceiptStatus(dlr.Status)
	if err != nil {
		return fmt.Errorf("parse dlr status %q: %w", dlr.Status, err)
	}

	if err := s.repo.UpdateDeliveryStatusByProviderID(ctx, dlr.ProviderMessageID, status); err != nil {
		return fmt.Errorf("update dlr status: %w", err)
	}

	s.log.Info("DLR received", "provider_message_id", dlr.ProviderMessageID, "status", status)
	return nil
}
