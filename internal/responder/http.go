package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/sakif/clustify-agent/internal/apperror"
	"github.com/sakif/clustify-agent/internal/model"
)

// DefaultTimeout bounds one call to the HTTP responder.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of the upstream body is read.
const maxResponseBytes = 1 << 20

// HTTPConfig configures NewHTTP. TokenURL, ClientID and ClientSecret are
// optional; when all three are set every call carries a bearer token
// obtained with the OAuth2 client-credentials grant.
type HTTPConfig struct {
	URL          string
	Timeout      time.Duration
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// HTTP calls a webhook with the prompt as JSON.
//
// WIRE FORMAT:
//
//	POST <URL>
//	{"prompt":"...","files":[{"name":"notes.txt","mimeType":"text/plain","size":42}]}
//
//	200 OK
//	{"response":"..."}   (or {"data":"..."}, the shape webhook tools return)
//
// Non-2xx statuses, unreadable bodies and empty answers are all errors.
type HTTP struct {
	url    string
	client *http.Client
}

var _ Responder = (*HTTP)(nil)

// NewHTTP builds an HTTP responder.
//
// OAUTH2 CLIENT CREDENTIALS:
// clientcredentials.Config.Client returns an *http.Client whose transport
// fetches a token from TokenURL on first use, caches it, and refreshes it
// when it expires. Our code just calls client.Do as usual.
func NewHTTP(cfg HTTPConfig) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" && cfg.ClientID != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		client = cc.Client(context.Background())
		client.Timeout = timeout
	}

	return &HTTP{url: cfg.URL, client: client}
}

type httpFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type httpRequest struct {
	Prompt string     `json:"prompt"`
	Files  []httpFile `json:"files"`
}

type httpResponse struct {
	Response string `json:"response"`
	Data     string `json:"data"`
}

func (h *HTTP) Respond(ctx context.Context, promptText string, files []model.Attachment) (string, error) {
	body := httpRequest{Prompt: promptText, Files: make([]httpFile, 0, len(files))}
	for _, f := range files {
		body.Files = append(body.Files, httpFile{Name: f.OriginalName, MimeType: f.MimeType, Size: f.SizeBytes})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperror.Upstream("encoding responder request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return "", apperror.Upstream("building responder request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", apperror.Upstream("responder unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", apperror.Upstream("reading responder reply", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperror.Upstream(fmt.Sprintf("responder returned status %d", resp.StatusCode), nil)
	}

	var out httpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", apperror.Upstream("decoding responder reply", err)
	}

	text := out.Response
	if text == "" {
		text = out.Data
	}
	if strings.TrimSpace(text) == "" {
		return "", apperror.Upstream("responder returned an empty response", nil)
	}
	return text, nil
}
