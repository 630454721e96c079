package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecipientResult is the per-recipient line of a dispatch run summary.
type RecipientResult struct {
	RecipientID       uuid.UUID `json:"recipientId"`
	MessageID         uuid.UUID `json:"-"`
	Phone             string    `json:"phone"`
	Success           bool      `json:"success"`
	ProviderMessageID string    `json:"messageId,omitempty"`
	Error             string    `json:"error,omitempty"`
	// Reconcile is set when the gateway was called but the outcome could
	// not be written back to the store.
	Reconcile bool `json:"reconcile,omitempty"`
}

// Summary aggregates the outcomes of one dispatch run.
type Summary struct {
	RunID          uuid.UUID         `json:"runId"`
	StartedAt      time.Time         `json:"startedAt"`
	FinishedAt     time.Time         `json:"finishedAt"`
	ProcessedCount int               `json:"processedCount"`
	Succeeded      int               `json:"succeeded"`
	Failed         int               `json:"failed"`
	Skipped        int               `json:"skipped"`
	LockContended  bool              `json:"lockContended,omitempty"`
	Results        []RecipientResult `json:"results"`
}

// Add appends a result and updates the counters.
func (s *Summary) Add(r RecipientResult) {
	s.Results = append(s.Results, r)
	s.ProcessedCount++
	if r.Success {
		s.Succeeded++
	} else {
		s.Failed++
	}
}
