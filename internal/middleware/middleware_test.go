package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestRequireUser(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Get("/", RequireUser(), func(c *fiber.Ctx) error {
		return c.SendString(UserID(c))
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"with user", "user-1", fiber.StatusOK},
		{"blank user", "   ", fiber.StatusUnauthorized},
		{"no header", "", fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRequireCronSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		secret     string
		auth       string
		wantStatus int
	}{
		{"valid token", "s3cret", "Bearer s3cret", fiber.StatusOK},
		{"wrong token", "s3cret", "Bearer nope", fiber.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", fiber.StatusUnauthorized},
		{"missing header", "s3cret", "", fiber.StatusUnauthorized},
		{"open when unset", "", "", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", RequireCronSecret(tt.secret), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/api", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	get := func(path string) int {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := range 2 {
		if status := get("/api"); status != fiber.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, status)
		}
	}
	if status := get("/api"); status != fiber.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", status)
	}
	if status := get("/health"); status != fiber.StatusOK {
		t.Errorf("health must bypass the limiter, got %d", status)
	}

	clock = clock.Add(30 * time.Second)
	if status := get("/api"); status != fiber.StatusOK {
		t.Errorf("after refill: status = %d, want 200", status)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(10, time.Minute)
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	rl.allow("10.0.0.1")
	clock = clock.Add(90 * time.Second)
	rl.allow("10.0.0.2")
	clock = clock.Add(60 * time.Second)
	rl.Cleanup()

	if _, ok := rl.visitors["10.0.0.1"]; ok {
		t.Error("idle visitor was not dropped")
	}
	if _, ok := rl.visitors["10.0.0.2"]; !ok {
		t.Error("recent visitor was dropped")
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	resp, _ = app.Test(req)
	if got := resp.Header.Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want %q", got, "abc")
	}
}
