package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/clustify-agent/internal/auth"
	"github.com/sakif/clustify-agent/internal/handler"
	sqliteRepo "github.com/sakif/clustify-agent/internal/repository/sqlite"
	"github.com/sakif/clustify-agent/internal/responder"
	"github.com/sakif/clustify-agent/internal/service"
	"github.com/sakif/clustify-agent/internal/storage"
	"github.com/sakif/clustify-agent/internal/upload"
)

// testAPI bundles real services over an in-memory database and a temp
// upload directory. Only the responder is canned.
type testAPI struct {
	auth    *handler.AuthHandler
	prompts *handler.PromptHandler
	health  *handler.HealthHandler
	tokens  *auth.TokenService
	dir     string
}

func newTestAPI(t *testing.T, policy upload.Policy) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqliteRepo.New(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	blobs, err := storage.NewDiskStore(dir)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", 0)
	require.NoError(t, err)
	gate := auth.NewGate(tokens)

	authSvc := service.NewAuthService(db, auth.NewPasswordServiceForTest(), tokens, nil, logger)
	validator := upload.NewValidator(policy)
	promptSvc := service.NewPromptService(db, db, validator, blobs, responder.Mock{}, nil, logger)

	p := validator.Policy()
	return &testAPI{
		auth:    handler.NewAuthHandler(authSvc, gate, logger),
		prompts: handler.NewPromptHandler(promptSvc, gate, p.MaxFiles, p.MaxFileSize, logger),
		health:  handler.NewHealthHandler(db, logger),
		tokens:  tokens,
		dir:     dir,
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), "body: %s", rr.Body.String())
	return out
}

// register creates an account and returns its token.
func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	rr := httptest.NewRecorder()
	a.auth.HandleRegister(rr, jsonRequest(http.MethodPost, "/api/auth/register",
		`{"name":"Test User","email":"`+email+`","password":"secret1"}`))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody(t, rr)["token"].(string)
}

type formFile struct {
	name string
	body string
}

// multipartRequest builds a POST /api/prompts request.
func multipartRequest(t *testing.T, token, prompt string, files ...formFile) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("prompt", prompt))
	for _, f := range files {
		fw, err := w.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/prompts", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}
