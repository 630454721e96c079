package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantSuccess bool
		wantID      string
		wantErr     string
	}{
		{
			name:        "queued",
			status:      http.StatusCreated,
			body:        `{"sid":"SM123","status":"queued"}`,
			wantSuccess: true,
			wantID:      "SM123",
		},
		{
			name:    "invalid number",
			status:  http.StatusBadRequest,
			body:    `{"code":21211,"message":"The 'To' number 12345 is not a valid phone number."}`,
			wantErr: "twilio error 21211: The 'To' number 12345 is not a valid phone number.",
		},
		{
			name:    "error without body",
			status:  http.StatusServiceUnavailable,
			body:    ``,
			wantErr: "twilio returned 503",
		},
		{
			name:    "failed on submit",
			status:  http.StatusCreated,
			body:    `{"sid":"SM456","status":"failed"}`,
			wantID:  "SM456",
			wantErr: "message failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/2010-04-01/Accounts/AC1/Messages.json" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				user, pass, ok := r.BasicAuth()
				if !ok || user != "AC1" || pass != "secret" {
					t.Errorf("bad basic auth %q:%q", user, pass)
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("ParseForm: %v", err)
				}
				if r.PostForm.Get("To") != "+15551234567" || r.PostForm.Get("From") != "+15550001111" || r.PostForm.Get("Body") != "Hi" {
					t.Errorf("unexpected form %v", r.PostForm)
				}
				if r.PostForm.Get("StatusCallback") != "https://example.com/dlr" {
					t.Errorf("StatusCallback = %q", r.PostForm.Get("StatusCallback"))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Config{
				AccountSID:        "AC1",
				AuthToken:         "secret",
				FromNumber:        "+15550001111",
				BaseURL:           srv.URL + "/",
				StatusCallbackURL: "https://example.com/dlr",
			})

			res, err := c.Send(context.Background(), "+15551234567", "Hi")
			if err != nil {
				t.Fatalf("Send returned error: %v", err)
			}
			if res.Success != tt.wantSuccess || res.ProviderMessageID != tt.wantID || res.Error != tt.wantErr {
				t.Errorf("result = %+v, want success=%v id=%q err=%q", res, tt.wantSuccess, tt.wantID, tt.wantErr)
			}
		})
	}
}

func TestSendTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(Config{AccountSID: "AC1", AuthToken: "secret", FromNumber: "+15550001111", BaseURL: srv.URL})
	if _, err := c.Send(context.Background(), "+15551234567", "Hi"); err == nil {
		t.Fatal("expected a transport error from a closed server")
	}
}

func TestSendHonoursContext(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{AccountSID: "AC1", AuthToken: "secret", FromNumber: "+15550001111", BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "+15551234567", "Hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send error = %v, want %v", err, context.DeadlineExceeded)
	}
}
