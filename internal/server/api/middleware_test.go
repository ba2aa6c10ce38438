package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows burst then rejects", func(t *testing.T) {
		rl := NewRateLimiter(1, 2)
		defer rl.Stop()

		if !rl.allow("10.0.0.1") {
			t.Fatal("first request should be allowed")
		}
		if !rl.allow("10.0.0.1") {
			t.Fatal("second request within burst should be allowed")
		}
		if rl.allow("10.0.0.1") {
			t.Error("request beyond burst should be rejected")
		}
	})

	t.Run("limits per IP", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		defer rl.Stop()

		if !rl.allow("10.0.0.1") {
			t.Fatal("first IP should be allowed")
		}
		if rl.allow("10.0.0.1") {
			t.Error("first IP should be exhausted")
		}
		if !rl.allow("10.0.0.2") {
			t.Error("second IP should have its own bucket")
		}
	})

	t.Run("middleware returns 429 when exhausted", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		defer rl.Stop()

		e := echo.New()
		handler := rl.Middleware()(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})

		call := func() int {
			req := httptest.NewRequest(http.MethodPost, "/api/upload/u1", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			rec := httptest.NewRecorder()
			if err := handler(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return rec.Code
		}

		if code := call(); code != http.StatusOK {
			t.Fatalf("expected 200 within burst, got %d", code)
		}
		if code := call(); code != http.StatusTooManyRequests {
			t.Errorf("expected 429 beyond burst, got %d", code)
		}
	})
}

func TestRateLimiter_Stop(t *testing.T) {
	t.Run("signals the cleanup goroutine", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		rl.Stop()

		select {
		case <-rl.stop:
		case <-time.After(time.Second):
			t.Fatal("stop channel was not closed")
		}
	})

	t.Run("is safe to call twice", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		rl.Stop()
		rl.Stop()
	})
}
