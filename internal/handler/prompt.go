package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/clustify-agent/internal/apperror"
	"github.com/sakif/clustify-agent/internal/auth"
	"github.com/sakif/clustify-agent/internal/model"
	"github.com/sakif/clustify-agent/internal/service"
)

const (
	// multipartMemory is how much of a multipart body is kept in RAM; larger
	// file parts spill to temp files that RemoveAll deletes.
	multipartMemory = 8 << 20

	// multipartOverhead covers the prompt field, boundaries and part headers.
	multipartOverhead = 1 << 20
)

// PromptHandler serves prompt submission and history.
type PromptHandler struct {
	svc     *service.PromptService
	gate    *auth.Gate
	maxBody int64
	logger  *slog.Logger
}

// NewPromptHandler creates a PromptHandler. maxFiles and maxFileSize come
// from the upload policy and bound the whole request body.
func NewPromptHandler(svc *service.PromptService, gate *auth.Gate, maxFiles int, maxFileSize int64, logger *slog.Logger) *PromptHandler {
	return &PromptHandler{
		svc:     svc,
		gate:    gate,
		maxBody: int64(maxFiles)*maxFileSize + multipartOverhead,
		logger:  logger,
	}
}

type submitResponse struct {
	Message  string `json:"message"`
	Response string `json:"response"`
	PromptID string `json:"promptId"`
}

// HandleSubmit accepts a prompt with optional attachments.
//
// HTTP: POST /api/prompts
// Auth: Authorization: Bearer <token>
// BODY: multipart/form-data with a "prompt" text field and up to 10 "files" parts
// RESPONSE: 201 {"message": "Prompt processed successfully", "response": "...", "promptId": "..."}
//
// ORDER OF CHECKS:
// The token is verified before a single byte of the body is read, so an
// anonymous client cannot make us buffer megabytes of uploads.
func (h *PromptHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := h.gate.Authenticate(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx := auth.WithIdentity(r.Context(), id)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, h.logger, err)
			return
		}
		writeError(w, h.logger, apperror.ValidationFailed("", "Request must be multipart/form-data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	res, err := h.svc.Submit(ctx, r.FormValue("prompt"), r.MultipartForm.File["files"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Message:  "Prompt processed successfully",
		Response: res.Response,
		PromptID: res.PromptID,
	})
}

// HandleList returns the caller's 20 most recent prompts, newest first.
//
// HTTP: GET /api/prompts
// Auth: Authorization: Bearer <token>
func (h *PromptHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, err := h.gate.Authenticate(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	prompts, err := h.svc.ListPrompts(auth.WithIdentity(r.Context(), id))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if prompts == nil {
		prompts = []model.Prompt{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}
