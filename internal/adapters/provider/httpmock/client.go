package httpmock

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"sms-scheduler/internal/ports"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client implements ports.SMSGateway by forwarding requests to a mock HTTP server.
type Client struct {
	baseURL    string
	dlrHook    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL. dlrHook, when set, is
// passed along so the mock can post delivery receipts back.
func New(baseURL, dlrHook string) *Client {
	return &Client{
		baseURL: baseURL,
		dlrHook: dlrHook,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Body    string `json:"body"`
	DLRHook string `json:"dlr_webhook_url,omitempty"`
}

type sendResponse struct {
	ProviderID string `json:"provider_id"`
	Error      string `json:"error"`
}

// Send posts the message to the mock provider's /send endpoint.
func (c *Client) Send(ctx context.Context, phone, body string) (ports.SendResult, error) {
	payload, err := json.Marshal(sendRequest{To: phone, Body: body, DLRHook: c.dlrHook})
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil && resp.StatusCode < http.StatusBadRequest {
		return ports.SendResult{}, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg := sr.Error
		if msg == "" {
			msg = fmt.Sprintf("provider returned %d", resp.StatusCode)
		}
		return ports.SendResult{Success: false, Error: msg}, nil
	}

	return ports.SendResult{Success: true, ProviderMessageID: sr.ProviderID}, nil
}
