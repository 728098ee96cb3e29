package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/clustify-agent/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(key string) (string, bool) {
		v, ok := map[string]string{
			"JWT_SECRET":       "server-test-secret-0123456789",
			"DB_PATH":          ":memory:",
			"UPLOAD_DIR":       t.TempDir(),
			"BCRYPT_COST":      "4",
			"AUTH_RATE_LIMIT":  "5",
			"AUTH_RATE_WINDOW": "1m",
		}[key]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	s, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func jsonPost(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// TestServer_FullFlow walks one user through every public route.
func TestServer_FullFlow(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	rr, body := do(t, h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	rr, body = do(t, h, jsonPost("/api/auth/register", `{"name":"Ada","email":"ada@example.com","password":"secret1"}`))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr, body = do(t, h, jsonPost("/api/auth/login", `{"email":"ada@example.com","password":"secret1"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	token := body["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr, body = do(t, h, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ada@example.com", body["user"].(map[string]any)["email"])

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("prompt", "Containerise this")
	fw, _ := w.CreateFormFile("files", "Dockerfile.docker")
	io.WriteString(fw, "FROM golang:1.25")
	w.Close()
	req = httptest.NewRequest(http.MethodPost, "/api/prompts", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr, body = do(t, h, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	promptID := body["promptId"]

	req = httptest.NewRequest(http.MethodGet, "/api/prompts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr, body = do(t, h, req)
	require.Equal(t, http.StatusOK, rr.Code)
	prompts := body["prompts"].([]any)
	require.Len(t, prompts, 1)
	assert.Equal(t, promptID, prompts[0].(map[string]any)["id"])

	rr, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `clustify_http_requests_total{method="POST",route="/api/prompts",status="201"} 1`)
	assert.Contains(t, rr.Body.String(), `clustify_prompts_submissions_total{result="ok"} 1`)
}

func TestServer_AuthRoutesAreRateLimited(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := jsonPost("/api/auth/login", `{"email":"nobody@example.com","password":"whatever"}`)
		req.RemoteAddr = "192.0.2.10:4000"
		last, _ = do(t, h, req)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))

	// Non-auth routes are not limited.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	rr, _ := do(t, h, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_ForwardedForDoesNotResetRateLimit(t *testing.T) {
	h := newTestServer(t, testConfig(t))

	limited := 0
	for i := 0; i < 20; i++ {
		req := jsonPost("/api/auth/login", `{"email":"nobody@example.com","password":"whatever"}`)
		req.RemoteAddr = "192.0.2.10:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
		rr, _ := do(t, h, req)
		if rr.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.Equal(t, 15, limited)
}

func TestServer_TrustedProxyHeadersSeparateClients(t *testing.T) {
	cfg := testConfig(t)
	cfg.TrustProxyHeaders = true
	h := newTestServer(t, cfg)

	login := func(forwardedFor string) int {
		req := jsonPost("/api/auth/login", `{"email":"nobody@example.com","password":"whatever"}`)
		req.RemoteAddr = "192.0.2.1:443"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr, _ := do(t, h, req)
		return rr.Code
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusBadRequest, login("198.51.100.7"))
	}
	assert.Equal(t, http.StatusTooManyRequests, login("198.51.100.7"))
	assert.Equal(t, http.StatusBadRequest, login("198.51.100.8"))
}

func TestServer_UnreachableRedisFallsBackToMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1" // nothing listens here

	start := time.Now()
	h := newTestServer(t, cfg)
	assert.Less(t, time.Since(start), 10*time.Second)

	rr, _ := do(t, h, jsonPost("/api/auth/login", `{"email":"a@example.com","password":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNew_BadBcryptCost(t *testing.T) {
	cfg := testConfig(t)
	cfg.BcryptCost = 99

	_, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
