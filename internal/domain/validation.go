package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxContentLength = 1600
	MaxNameLength    = 100
)

// phonePattern accepts E.164 numbers; the leading '+' and country code are required.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ValidPhone reports whether phone is an E.164 number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// FieldViolation describes one invalid field of an intake request.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a request, not just the first.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a violation for field.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns e when it holds violations and nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// RecipientDraft is an unvalidated recipient as supplied by a caller.
type RecipientDraft struct {
	Name   string
	Phone  string
	SendAt string // RFC 3339
}

// MessageDraft is an unvalidated message as supplied by a caller.
type MessageDraft struct {
	Content    string
	Recipients []RecipientDraft
}

// Validate checks the draft against the intake rules and converts it into
// recipients ready to persist. A send time earlier than now-grace is rejected.
func (d MessageDraft) Validate(now time.Time, grace time.Duration) ([]Recipient, error) {
	verr := &ValidationError{}

	switch n := utf8.RuneCountInString(d.Content); {
	case strings.TrimSpace(d.Content) == "":
		verr.Add("content", "must not be empty")
	case n > MaxContentLength:
		verr.Add("content", "must be at most %d characters, got %d", MaxContentLength, n)
	}

	if len(d.Recipients) == 0 {
		verr.Add("recipients", "at least one recipient is required")
	}

	earliest := now.Add(-grace)
	recipients := make([]Recipient, 0, len(d.Recipients))
	for i, rd := range d.Recipients {
		field := fmt.Sprintf("recipients[%d]", i)

		if utf8.RuneCountInString(rd.Name) > MaxNameLength {
			verr.Add(field+".name", "must be at most %d characters", MaxNameLength)
		}
		if !ValidPhone(rd.Phone) {
			verr.Add(field+".phone", "invalid phone number %q, expected E.164 format like +15551234567", rd.Phone)
		}

		sendAt, err := time.Parse(time.RFC3339Nano, rd.SendAt)
		switch {
		case err != nil:
			verr.Add(field+".sendAt", "must be an RFC 3339 timestamp")
		case sendAt.Before(earliest):
			verr.Add(field+".sendAt", "must not be in the past")
		}

		recipients = append(recipients, Recipient{
			Name:   strings.TrimSpace(rd.Name),
			Phone:  rd.Phone,
			SendAt: sendAt,
		})
	}

	if err := verr.Err(); err != nil {
		return nil, err
	}
	return recipients, nil
}
