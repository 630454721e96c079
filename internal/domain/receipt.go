package domain

import "strings"

// ReceiptStatus is a delivery status reported back by the SMS provider.
// It is informational and never changes a recipient's Sent flag.
type ReceiptStatus string

const (
	ReceiptQueued      ReceiptStatus = "queued"
	ReceiptSent        ReceiptStatus = "sent"
	ReceiptDelivered   ReceiptStatus = "delivered"
	ReceiptUndelivered ReceiptStatus = "undelivered"
	ReceiptFailed      ReceiptStatus = "failed"
)

// ParseReceiptStatus normalises a provider status string.
func ParseReceiptStatus(s string) (ReceiptStatus, error) {
	switch st := ReceiptStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ReceiptQueued, ReceiptSent, ReceiptDelivered, ReceiptUndelivered, ReceiptFailed:
		return st, nil
	case "accepted", "sending":
		return ReceiptQueued, nil
	default:
		return "", ErrInvalidStatus
	}
}
