// Package twilio implements ports.SMSGateway against the Twilio Messages REST API.
package twilio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sms-scheduler/internal/ports"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultBaseURL = "https://api.twilio.com"

// Config holds the account credentials and sender number.
type Config struct {
	AccountSID        string
	AuthToken         string
	FromNumber        string
	BaseURL           string  // Overridable for tests; defaults to the public API
	StatusCallbackURL string  // Optional delivery receipt webhook
	RatePerSecond     float64 // Zero disables throttling
}

// Client implements ports.SMSGateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Client. The http.Client timeout is a backstop; callers are
// expected to bound each Send with their own context deadline.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return c
}

type messageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send creates a message resource. Provider-side rejections come back as an
// unsuccessful result; only transport faults are returned as errors.
func (c *Client) Send(ctx context.Context, phone, body string) (ports.SendResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ports.SendResult{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Body", body)
	if c.cfg.StatusCallbackURL != "" {
		form.Set("StatusCallback", c.cfg.StatusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, url.PathEscape(c.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return ports.SendResult{Success: false, Error: describeError(resp.StatusCode, raw)}, nil
	}

	var mr messageResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return ports.SendResult{}, fmt.Errorf("decode response: %w", err)
	}
	if mr.Status == "failed" || mr.Status == "undelivered" {
		return ports.SendResult{Success: false, ProviderMessageID: mr.SID, Error: "message " + mr.Status}, nil
	}
	return ports.SendResult{Success: true, ProviderMessageID: mr.SID}, nil
}

func describeError(status int, raw []byte) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Message != "" {
		if er.Code != 0 {
			return fmt.Sprintf("twilio error %d: %s", er.Code, er.Message)
		}
		return er.Message
	}
	return fmt.Sprintf("twilio returned %d", status)
}
