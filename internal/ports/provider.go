package ports

import (
	"context"
)

// SendResult is the gateway's verdict for one submitted SMS.
// Ordinary delivery failures (rejected number, provider error) are reported
// here with Success=false rather than as a Go error.
type SendResult struct {
	Success           bool
	ProviderMessageID string // External message ID assigned by the provider
	Error             string
}

// SMSGateway abstracts the external SMS provider.
type SMSGateway interface {
	// Send submits body to phone. A non-nil error means a transport-level
	// fault; the result is meaningless in that case.
	Send(ctx context.Context, phone, body string) (SendResult, error)
}

// DLRPayload is the normalised delivery receipt from the provider's webhook.
type DLRPayload struct {
	ProviderMessageID string
	Status            string
}
