// Package repository declares the storage contracts the services depend on.
//
// Services only ever see these interfaces; the concrete SQLite implementation
// lives in the sqlite sub-package and tests substitute hand-written fakes.
package repository

import (
	"context"

	"github.com/sakif/clustify-agent/internal/model"
)

// MaxHistory is the largest number of prompts ListByUser ever returns.
const MaxHistory = 20

// UserRepository is the credential store.
//
// Email lookups are case-insensitive. CreateUser fails with
// apperror.ErrDuplicateAccount when the email is taken; that check is done by
// the storage layer itself so two concurrent registrations cannot both win.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// PromptRepository stores submissions.
//
// CreatePrompt writes the prompt and its attachments atomically: either the
// whole record is visible afterwards or none of it is.
//
// ListByUser is the only read path and it is always scoped to one owner.
// Results are newest first; limit is clamped to 1..MaxHistory.
type PromptRepository interface {
	CreatePrompt(ctx context.Context, prompt *model.Prompt) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Prompt, error)
}
