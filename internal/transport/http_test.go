package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sms-scheduler/internal/adapters/db/memory"
	"sms-scheduler/internal/app"
	"sms-scheduler/internal/domain"
	"sms-scheduler/internal/ports"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type stubGateway struct{}

func (stubGateway) Send(_ context.Context, phone, _ string) (ports.SendResult, error) {
	if strings.HasSuffix(phone, "0000") {
		return ports.SendResult{Success: false, Error: "invalid number"}, nil
	}
	return ports.SendResult{Success: true, ProviderMessageID: "SM123"}, nil
}

const testSecret = "s3cret"

func newTestApp(t *testing.T) (*fiber.App, *memory.Repository) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()

	dispatcher, err := app.NewDispatcher(repo, stubGateway{}, log)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	h := NewHandler(
		app.NewIntakeService(repo, log, time.Minute),
		dispatcher,
		app.NewDeliveryReportService(repo, log),
		log,
	)

	fiberApp := fiber.New()
	h.Register(fiberApp.Group("/api"), testSecret)
	h.RegisterDLR(fiberApp)
	return fiberApp, repo
}

func do(t *testing.T, a *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := a.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %q: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func createRequest(body, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return req
}

func TestCreateMessage(t *testing.T) {
	t.Parallel()

	soon := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)

	tests := []struct {
		name       string
		userID     string
		body       string
		wantStatus int
		wantStored int
	}{
		{
			name:       "scheduled",
			userID:     "user-1",
			body:       `{"content":"Hi","recipients":[{"name":"Alice","phone":"+15551234567","sendAt":"` + soon + `"}]}`,
			wantStatus: fiber.StatusCreated,
			wantStored: 1,
		},
		{
			name:       "no user",
			body:       `{"content":"Hi","recipients":[{"phone":"+15551234567","sendAt":"` + soon + `"}]}`,
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "malformed json",
			userID:     "user-1",
			body:       `{"content":`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "invalid fields",
			userID:     "user-1",
			body:       `{"content":"","recipients":[{"phone":"12345","sendAt":"soon"}]}`,
			wantStatus: fiber.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, repo := newTestApp(t)

			status, body := do(t, a, createRequest(tt.body, tt.userID))
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}

			stored, _ := repo.ListMessagesByUser(context.Background(), "user-1")
			if len(stored) != tt.wantStored {
				t.Errorf("stored %d messages, want %d", len(stored), tt.wantStored)
			}
		})
	}
}

func TestCreateMessageReportsEveryViolation(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)

	body := `{"content":"` + strings.Repeat("a", domain.MaxContentLength+1) + `","recipients":[{"phone":"12345","sendAt":"2020-01-01T00:00:00Z"}]}`
	status, resp := do(t, a, createRequest(body, "user-1"))
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if resp["error"] != "invalid input" {
		t.Errorf("error = %v", resp["error"])
	}
	details, _ := resp["details"].([]any)
	if len(details) != 3 {
		t.Errorf("got %d violations, want 3: %v", len(details), details)
	}
}

func TestListMessages(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)

	soon := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	for _, user := range []string{"user-1", "user-2"} {
		body := `{"content":"Hi","recipients":[{"phone":"+15551234567","sendAt":"` + soon + `"}]}`
		if status, _ := do(t, a, createRequest(body, user)); status != fiber.StatusCreated {
			t.Fatalf("create for %s: status %d", user, status)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("X-User-ID", "user-1")
	status, resp := do(t, a, req)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	data, _ := resp["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("got %d messages, want 1", len(data))
	}
	msg := data[0].(map[string]any)
	recipients := msg["recipients"].([]any)
	if recipients[0].(map[string]any)["state"] != "pending" {
		t.Errorf("state = %v, want pending", recipients[0].(map[string]any)["state"])
	}
}

func cronRequest(method, secret string) *http.Request {
	req := httptest.NewRequest(method, "/api/cron/send-messages", nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req
}

func TestRunDispatch(t *testing.T) {
	t.Parallel()
	a, repo := newTestApp(t)

	status, resp := do(t, a, cronRequest(http.MethodGet, testSecret))
	if status != fiber.StatusOK || resp["message"] != "No messages to send at this time" {
		t.Fatalf("empty run: status=%d body=%v", status, resp)
	}

	now := time.Now().UTC()
	msg := domain.NewMessage("user-1", "Hi", []domain.Recipient{
		{Phone: "+15551234567", SendAt: now.Add(-time.Minute)},
		{Phone: "+15550000000", SendAt: now.Add(-time.Minute)},
		{Phone: "+15557654321", SendAt: now.Add(time.Hour)},
	})
	if err := repo.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	status, resp = do(t, a, cronRequest(http.MethodPost, testSecret))
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", status, resp)
	}
	if resp["message"] != "Processed 2 messages" {
		t.Errorf("message = %v", resp["message"])
	}
	if resp["succeeded"] != float64(1) || resp["failed"] != float64(1) {
		t.Errorf("succeeded=%v failed=%v, want 1/1", resp["succeeded"], resp["failed"])
	}
	results, _ := resp["results"].([]any)
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}

	status, resp = do(t, a, cronRequest(http.MethodGet, testSecret))
	if status != fiber.StatusOK || resp["processedCount"] != float64(0) {
		t.Errorf("second run must find nothing: status=%d body=%v", status, resp)
	}
}

func TestRunDispatchRequiresSecret(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t)

	for _, secret := range []string{"", "wrong"} {
		if status, _ := do(t, a, cronRequest(http.MethodGet, secret)); status != fiber.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want 401", secret, status)
		}
	}
}

func TestHandleDLR(t *testing.T) {
	t.Parallel()
	a, repo := newTestApp(t)

	now := time.Now().UTC()
	msg := domain.NewMessage("user-1", "Hi", []domain.Recipient{{Phone: "+15551234567", SendAt: now}})
	_ = repo.CreateMessage(context.Background(), msg)
	id := msg.Recipients[0].ID
	_ = repo.MarkSent(context.Background(), id, now)
	_ = repo.RecordOutcome(context.Background(), id, domain.Outcome{Success: true, ProviderMessageID: "SM123"})

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"json receipt", fiber.MIMEApplicationJSON, `{"provider_id":"SM123","status":"delivered"}`, fiber.StatusNoContent},
		{"twilio form", fiber.MIMEApplicationForm, `MessageSid=SM123&MessageStatus=undelivered`, fiber.StatusNoContent},
		{"missing fields", fiber.MIMEApplicationJSON, `{"provider_id":"SM123"}`, fiber.StatusBadRequest},
		{"unknown status", fiber.MIMEApplicationJSON, `{"provider_id":"SM123","status":"lost"}`, fiber.StatusBadRequest},
		{"unknown provider id", fiber.MIMEApplicationJSON, `{"provider_id":"SM404","status":"delivered"}`, fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/dlr", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			if status, body := do(t, a, req); status != tt.wantStatus {
				t.Errorf("status = %d, want %d (%v)", status, tt.wantStatus, body)
			}
		})
	}

	got, _ := repo.GetRecipient(context.Background(), id)
	if got.DeliveryStatus != string(domain.ReceiptUndelivered) {
		t.Errorf("DeliveryStatus = %q, want %q", got.DeliveryStatus, domain.ReceiptUndelivered)
	}
}
