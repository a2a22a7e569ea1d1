package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/aman-churiwal/leetquery/internal/auth"
	"github.com/aman-churiwal/leetquery/internal/config"
	"github.com/aman-churiwal/leetquery/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testPolicies() *ratelimit.Policies {
	return ratelimit.NewPolicies(config.RateLimitConfig{
		Enabled:       true,
		Store:         "memory",
		Default:       config.Policy{Capacity: 100, RefillTokens: 100, Interval: time.Minute},
		Strict:        config.Policy{Capacity: 2, RefillTokens: 2, Interval: time.Minute},
		Query:         config.Policy{Capacity: 50, RefillTokens: 50, Interval: time.Minute},
		ExcludedPaths: []string{"/health"},
	}, nil)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(testPolicies()))
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/auth/me", ok)
	r.GET("/health", ok)
	r.GET("/stages", ok)

	for i, want := range []string{"1", "0"} {
		w := perform(r, http.MethodGet, "/auth/me", nil)
		if w.Code != http.StatusOK || w.Header().Get(HeaderRateLimitRemaining) != want {
			t.Fatalf("request %d: code %d remaining %q", i, w.Code, w.Header().Get(HeaderRateLimitRemaining))
		}
	}

	w := perform(r, http.MethodGet, "/auth/me", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// One token per 30s; a few microseconds of refill may round it down.
	retry, err := strconv.Atoi(w.Header().Get(HeaderRateLimitRetryAfter))
	if err != nil || retry < 29 || retry > 30 {
		t.Fatalf("unexpected retry header %q", w.Header().Get(HeaderRateLimitRetryAfter))
	}

	var body struct {
		Error             string `json:"error"`
		RetryAfterSeconds int    `json:"retry_after_seconds"`
		Message           string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Rate limit exceeded" || body.RetryAfterSeconds != retry ||
		body.Message != fmt.Sprintf("Too many requests. Please try again after %d seconds", retry) {
		t.Fatalf("unexpected body %+v", body)
	}

	// Other policies and other clients are unaffected.
	if w := perform(r, http.MethodGet, "/stages", nil); w.Code != http.StatusOK {
		t.Fatalf("default policy should be independent, got %d", w.Code)
	}
	if w := perform(r, http.MethodGet, "/auth/me", map[string]string{"X-Forwarded-For": "198.51.100.7"}); w.Code != http.StatusOK {
		t.Fatalf("other client should be independent, got %d", w.Code)
	}

	for i := 0; i < 5; i++ {
		w := perform(r, http.MethodGet, "/health", nil)
		if w.Code != http.StatusOK || w.Header().Get(HeaderRateLimitRemaining) != "" {
			t.Fatalf("excluded path was limited: %d %q", w.Code, w.Header().Get(HeaderRateLimitRemaining))
		}
	}
}

func TestRateLimitExtensionDoesNotExemptRoutes(t *testing.T) {
	policies := ratelimit.NewPolicies(config.RateLimitConfig{
		Enabled:       true,
		Store:         "memory",
		Default:       config.Policy{Capacity: 100, RefillTokens: 100, Interval: time.Minute},
		Strict:        config.Policy{Capacity: 2, RefillTokens: 2, Interval: time.Minute},
		Query:         config.Policy{Capacity: 50, RefillTokens: 50, Interval: time.Minute},
		ExcludedPaths: []string{"/health", ".png"},
	}, nil)

	r := gin.New()
	r.Use(RateLimit(policies))
	r.PUT("/admin/roles/:subject", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = perform(r, http.MethodPut, "/admin/roles/a.png", nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected strict policy to apply to /admin/roles/a.png, got %d", last.Code)
	}

	// Unrouted asset paths stay exempt.
	for i := 0; i < 3; i++ {
		w := perform(r, http.MethodGet, "/img/logo.png", nil)
		if w.Code != http.StatusNotFound || w.Header().Get(HeaderRateLimitRemaining) != "" {
			t.Fatalf("asset path was limited: %d %q", w.Code, w.Header().Get(HeaderRateLimitRemaining))
		}
	}
}

type stubRoles map[string]string

func (s stubRoles) FindRole(_ context.Context, subject string) (string, error) {
	if subject == "broken" {
		return "", errors.New("db down")
	}
	return s[subject], nil
}

func authRouter(t *testing.T) (*gin.Engine, *auth.TokenManager) {
	t.Helper()
	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: "middleware-test-secret-middleware!"})
	resolver := auth.NewResolver(tokens, stubRoles{"admin-1": "ADMIN"})

	r := gin.New()
	r.Use(RequestID())
	admin := r.Group("/admin", RequireRole(resolver, "ADMIN"))
	admin.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": GetIdentity(c).Subject})
	})
	r.GET("/me", RequireAuth(resolver), func(c *gin.Context) {
		c.JSON(http.StatusOK, GetIdentity(c))
	})
	r.GET("/maybe", OptionalAuth(resolver), func(c *gin.Context) {
		if id := GetIdentity(c); id != nil {
			c.String(http.StatusOK, id.Subject)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	return r, tokens
}

func TestAuthMiddleware(t *testing.T) {
	r, tokens := authRouter(t)

	adminToken, _, _ := tokens.Issue("admin-1", "root", auth.KindAccess)
	userToken, _, _ := tokens.Issue("user-1", "ann", auth.KindAccess)
	brokenToken, _, _ := tokens.Issue("broken", "x", auth.KindAccess)

	cases := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"missing header", "/admin/status", "", http.StatusUnauthorized},
		{"malformed header", "/admin/status", "Token abc", http.StatusUnauthorized},
		{"garbage token", "/admin/status", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"user on admin route", "/admin/status", "Bearer " + userToken, http.StatusForbidden},
		{"admin on admin route", "/admin/status", "Bearer " + adminToken, http.StatusOK},
		{"role lookup failure", "/admin/status", "Bearer " + brokenToken, http.StatusInternalServerError},
		{"user on me", "/me", "Bearer " + userToken, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			w := perform(r, http.MethodGet, tc.path, headers)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
			if tc.code >= 400 {
				var body map[string]string
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" || body["message"] == "" {
					t.Fatalf("expected {error, message} body, got %s", w.Body.String())
				}
			}
		})
	}

	if w := perform(r, http.MethodGet, "/maybe", nil); w.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous, got %q", w.Body.String())
	}
	if w := perform(r, http.MethodGet, "/maybe", map[string]string{"Authorization": "Bearer junk"}); w.Body.String() != "anonymous" {
		t.Fatalf("invalid optional token should be ignored, got %q", w.Body.String())
	}
	if w := perform(r, http.MethodGet, "/maybe", map[string]string{"Authorization": "Bearer " + userToken}); w.Body.String() != "user-1" {
		t.Fatalf("expected subject, got %q", w.Body.String())
	}
}

func TestRecoveryAndHeaders(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(), SecurityHeaders(true), CORS([]string{"https://leetquery.dev"}))
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := perform(r, http.MethodGet, "/boom", map[string]string{"Origin": "https://leetquery.dev"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] != "Internal Server Error" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	h := w.Header()
	if h.Get("X-Frame-Options") != "DENY" || h.Get("Strict-Transport-Security") == "" {
		t.Fatalf("security headers missing: %v", h)
	}
	if h.Get("Access-Control-Allow-Origin") != "https://leetquery.dev" {
		t.Fatalf("cors origin not echoed: %v", h)
	}
	if h.Get(RequestIDHeader) == "" {
		t.Fatal("request id missing")
	}

	w = perform(r, http.MethodOptions, "/boom", map[string]string{"Origin": "https://evil.example"})
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected preflight for unknown origin: %d %v", w.Code, w.Header())
	}
}
