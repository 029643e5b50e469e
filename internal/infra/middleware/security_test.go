package middleware

import (
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": contentSecurityPolicy,
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	}
	for header, expectedValue := range expectedHeaders {
		if got := w.Header().Get(header); got != expectedValue {
			t.Errorf("Header %s = %q, want %q", header, got, expectedValue)
		}
	}

	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
	if !strings.Contains(contentSecurityPolicy, "connect-src 'self' ws: wss:") {
		t.Error("CSP must allow the websocket connection")
	}
}

func TestSecurityHeaders_HSTS_WithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()

	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	expectedHSTS := "max-age=31536000; includeSubDomains"
	if got := w.Header().Get("Strict-Transport-Security"); got != expectedHSTS {
		t.Errorf("HSTS = %q, want %q", got, expectedHSTS)
	}
}

func sendN(handler http.Handler, n int, remote string) (ok, blocked int) {
	for i := 0; i < n; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		switch w.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			blocked++
		}
	}
	return ok, blocked
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 10})(okHandler())

	ok, blocked := sendN(handler, 10, "192.168.1.1:12345")
	if ok != 10 || blocked != 0 {
		t.Errorf("ok=%d blocked=%d, want 10/0", ok, blocked)
	}
}

func TestRateLimit_BlocksExcessiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 0.1, Burst: 3})(okHandler())

	ok, blocked := sendN(handler, 10, "192.168.1.1:12345")
	if ok != 3 {
		t.Errorf("Expected 3 successful requests, got %d", ok)
	}
	if blocked != 7 {
		t.Errorf("Expected 7 blocked requests, got %d", blocked)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 0.25, Burst: 1})(okHandler())

	sendN(handler, 1, "10.1.1.1:1")
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.1.1:1"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "4" {
		t.Errorf("Retry-After = %q, want 4", got)
	}
}

func TestRateLimit_SeparatesClientsByIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 0.1, Burst: 2})(okHandler())

	_, blocked1 := sendN(handler, 3, "192.168.1.1:12345")
	ok2, _ := sendN(handler, 2, "192.168.1.2:12345")

	if blocked1 == 0 {
		t.Error("Client 1 should have been rate limited")
	}
	if ok2 != 2 {
		t.Errorf("Client 2 should have 2 successful requests, got %d", ok2)
	}
}

func TestRateLimit_TokenRefill(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping time-dependent test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 1})(okHandler())

	if ok, _ := sendN(handler, 1, "192.168.1.1:12345"); ok != 1 {
		t.Fatal("first request should pass")
	}
	if _, blocked := sendN(handler, 1, "192.168.1.1:12345"); blocked != 1 {
		t.Fatal("immediate second request should be blocked")
	}

	time.Sleep(1100 * time.Millisecond)

	if ok, _ := sendN(handler, 1, "192.168.1.1:12345"); ok != 1 {
		t.Error("request after refill should pass")
	}
}

func TestRateLimit_CleanupGoroutineStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runtime.GC()
	time.Sleep(10 * time.Millisecond)
	before := runtime.NumGoroutine()

	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 10})(okHandler())
	sendN(handler, 1, "192.168.1.1:12345")

	cancel()
	time.Sleep(100 * time.Millisecond)
	runtime.GC()

	if after := runtime.NumGoroutine(); after > before+2 {
		t.Errorf("Potential goroutine leak: before=%d, after=%d", before, after)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name           string
		remoteAddr     string
		xForwardedFor  string
		xRealIP        string
		trustedProxies []string
		wantIP         string
	}{
		{"no proxies strips port", "192.168.1.1:12345", "", "", nil, "192.168.1.1"},
		{"ipv6 peer", "[::1]:8080", "", "", nil, "::1"},
		{"untrusted source ignores XFF", "1.2.3.4:12345", "8.8.8.8", "", []string{"192.168.1.1"}, "1.2.3.4"},
		{"no trusted proxies ignores XFF", "1.2.3.4:12345", "8.8.8.8", "", nil, "1.2.3.4"},
		{"trusted proxy uses first XFF", "192.168.1.1:12345", "203.0.113.1, 198.51.100.1", "", []string{"192.168.1.1"}, "203.0.113.1"},
		{"trusted CIDR", "10.4.5.6:999", "8.8.8.8", "", []string{"10.0.0.0/8"}, "8.8.8.8"},
		{"trusted proxy X-Real-IP", "192.168.1.1:12345", "", "203.0.113.9", []string{"192.168.1.1"}, "203.0.113.9"},
		{"trusted proxy no headers", "192.168.1.1:12345", "", "", []string{"192.168.1.1"}, "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := ClientIP(req, tt.trustedProxies); got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest("GET", "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "path=/healthz") || !strings.Contains(out, "status=418") {
		t.Errorf("unexpected access log: %s", out)
	}
}
