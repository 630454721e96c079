package httpmock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
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
		{"accepted", http.StatusAccepted, `{"provider_id":"SM123"}`, true, "SM123", ""},
		{"ok", http.StatusOK, `{"provider_id":"SM124"}`, true, "SM124", ""},
		{"rejected", http.StatusBadRequest, `{"error":"invalid number"}`, false, "", "invalid number"},
		{"server error", http.StatusInternalServerError, `oops`, false, "", "provider returned 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/send" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var req sendRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("decode request: %v", err)
				}
				if req.To != "+15551234567" || req.Body != "Hi" || req.DLRHook != "http://dlr/hook" {
					t.Errorf("unexpected payload %+v", req)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := New(srv.URL, "http://dlr/hook").Send(context.Background(), "+15551234567", "Hi")
			if err != nil {
				t.Fatalf("Send returned error: %v", err)
			}
			if res.Success != tt.wantSuccess || res.ProviderMessageID != tt.wantID || res.Error != tt.wantErr {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestSendUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	if _, err := New(srv.URL, "").Send(context.Background(), "+15551234567", "Hi"); err == nil {
		t.Fatal("expected a transport error")
	}
}
