// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)      → parses requests, writes responses
//	Service (Business layer)  → validates, enforces rules, orchestrates
//	Repository (Data layer)   → reads/writes to the database
//
// Services take repository INTERFACES, not the concrete sqlite type, so
// tests pass hand-written fakes and never touch a database.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/sakif/clustify-agent/internal/apperror"
	"github.com/sakif/clustify-agent/internal/auth"
	"github.com/sakif/clustify-agent/internal/metrics"
	"github.com/sakif/clustify-agent/internal/model"
	"github.com/sakif/clustify-agent/internal/repository"
	"github.com/sakif/clustify-agent/internal/responder"
	"github.com/sakif/clustify-agent/internal/storage"
	"github.com/sakif/clustify-agent/internal/upload"
)

// PromptService runs the submission pipeline and serves prompt history.
type PromptService struct {
	users     repository.UserRepository
	prompts   repository.PromptRepository
	validator *upload.Validator
	blobs     storage.Store
	responder responder.Responder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewPromptService(
	users repository.UserRepository,
	prompts repository.PromptRepository,
	validator *upload.Validator,
	blobs storage.Store,
	r responder.Responder,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PromptService {
	return &PromptService{
		users:     users,
		prompts:   prompts,
		validator: validator,
		blobs:     blobs,
		responder: r,
		metrics:   m,
		logger:    logger,
	}
}

// SubmitResult is what the caller gets back for a stored submission.
type SubmitResult struct {
	Response string
	PromptID string
	Prompt   *model.Prompt
}

// Submit validates, stores and answers one prompt.
//
// The caller is the identity the auth gate attached to ctx.
//
// PIPELINE:
//  0. ctx must carry an authenticated caller           → Unauthenticated
//  1. prompt text must be non-blank                    → ValidationError
//     (only the check trims; the text is stored as sent)
//  2. attachments must pass the upload policy          → UploadRejected
//     (nothing has been written yet at this point)
//  3. the caller must still exist                      → NotFound
//  4. each attachment is written to blob storage, in upload order
//  5. the responder is asked for an answer; if it fails we use the
//     fallback text instead, so this step never fails the request
//  6. prompt + file metadata + response are inserted in one transaction
//
// ALL OR NOTHING:
// If step 4 fails part-way, or step 6 fails, every blob written for this
// submission is deleted again before returning PersistenceError. Cleanup
// runs on a context detached from the request so a client disconnect
// cannot leave orphans behind.
func (s *PromptService) Submit(ctx context.Context, promptText string, files []*multipart.FileHeader) (*SubmitResult, error) {
	callerID, err := callerFrom(ctx)
	if err != nil {
		s.metrics.Submission(metrics.ResultRejected)
		return nil, err
	}

	if strings.TrimSpace(promptText) == "" {
		s.metrics.Submission(metrics.ResultRejected)
		return nil, apperror.ValidationFailed("prompt", "Prompt is required")
	}

	accepted, err := s.validator.Validate(files)
	if err != nil {
		s.logger.Info("upload rejected", "user_id", callerID, "reason", apperror.ReasonOf(err))
		s.metrics.Submission(metrics.ResultRejected)
		return nil, err
	}

	if _, err := s.users.GetUserByID(ctx, callerID); err != nil {
		s.metrics.Submission(metrics.ResultRejected)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("loading submitting user failed", "user_id", callerID, "error", err)
		return nil, apperror.Persistence("load user", err)
	}

	attachments, err := s.storeFiles(ctx, accepted)
	if err != nil {
		s.logger.Error("storing attachments failed", "user_id", callerID, "error", err)
		s.metrics.Submission(metrics.ResultError)
		return nil, apperror.Persistence("store uploaded files", err)
	}

	response := s.respond(ctx, promptText, attachments)

	prompt := &model.Prompt{
		UserID:     callerID,
		PromptText: promptText,
		Files:      attachments,
		Response:   response,
	}
	if err := s.prompts.CreatePrompt(ctx, prompt); err != nil {
		s.logger.Error("saving prompt failed", "user_id", callerID, "error", err)
		s.removeFiles(ctx, attachments)
		s.metrics.Submission(metrics.ResultError)
		return nil, apperror.Persistence("save prompt", err)
	}

	s.logger.Info("prompt submitted",
		"user_id", callerID,
		"prompt_id", prompt.ID,
		"files", len(attachments),
	)
	s.metrics.Submission(metrics.ResultOK)
	return &SubmitResult{Response: response, PromptID: prompt.ID, Prompt: prompt}, nil
}

// ListPrompts returns the most recent prompts of the caller in ctx, newest first.
func (s *PromptService) ListPrompts(ctx context.Context) ([]model.Prompt, error) {
	callerID, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	prompts, err := s.prompts.ListByUser(ctx, callerID, repository.MaxHistory)
	if err != nil {
		s.logger.Error("listing prompts failed", "user_id", callerID, "error", err)
		return nil, apperror.Persistence("load prompts", err)
	}
	return prompts, nil
}

func callerFrom(ctx context.Context) (string, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return "", apperror.Unauthenticated("Access token required")
	}
	return id.UserID, nil
}

// storeFiles writes every accepted upload. On the first failure it deletes
// whatever it already wrote and returns the error.
func (s *PromptService) storeFiles(ctx context.Context, accepted []upload.Accepted) ([]model.Attachment, error) {
	attachments := make([]model.Attachment, 0, len(accepted))

	for _, a := range accepted {
		path, err := s.storeOne(ctx, a)
		if err != nil {
			s.removeFiles(ctx, attachments)
			return nil, err
		}
		attachments = append(attachments, model.Attachment{
			StoredName:   a.StoredName,
			OriginalName: a.OriginalName,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
			StoragePath:  path,
		})
		s.metrics.FileStored(a.SizeBytes)
	}
	return attachments, nil
}

func (s *PromptService) storeOne(ctx context.Context, a upload.Accepted) (string, error) {
	rc, err := a.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload %s: %w", a.OriginalName, err)
	}
	defer rc.Close()

	return s.blobs.Put(ctx, a.StoredName, rc)
}

func (s *PromptService) removeFiles(ctx context.Context, attachments []model.Attachment) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, a := range attachments {
		if err := s.blobs.Delete(cleanupCtx, a.StoragePath); err != nil {
			s.logger.Error("removing orphaned upload failed", "path", a.StoragePath, "error", err)
		}
	}
}

// respond asks the responder for an answer and falls back to the local text
// on any error or an empty answer.
func (s *PromptService) respond(ctx context.Context, text string, files []model.Attachment) string {
	start := time.Now()
	response, err := s.responder.Respond(ctx, text, files)
	elapsed := time.Since(start)

	if err != nil || strings.TrimSpace(response) == "" {
		s.logger.Warn("responder failed, using fallback",
			"error", err,
			"duration", elapsed,
		)
		s.metrics.ResponderCall(elapsed, true)
		return responder.Fallback(text, len(files))
	}

	s.metrics.ResponderCall(elapsed, false)
	return response
}
