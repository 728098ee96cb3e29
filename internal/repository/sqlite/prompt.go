package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/clustify-agent/internal/model"
	"github.com/sakif/clustify-agent/internal/repository"
)

var _ repository.PromptRepository = (*DB)(nil)

// CreatePrompt inserts a prompt and its attachments in one transaction and
// fills in prompt.ID and prompt.CreatedAt.
//
// TRANSACTIONS:
// BeginTx → several ExecContext calls on the *sql.Tx → Commit.
// If anything fails before Commit, the deferred Rollback undoes every
// statement, so history never shows a prompt with half its files.
// Rollback after a successful Commit is a no-op (it returns sql.ErrTxDone,
// which we ignore).
func (db *DB) CreatePrompt(ctx context.Context, prompt *model.Prompt) error {
	id := xid.New().String()
	createdAt := time.Now().UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning prompt transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO prompts (id, user_id, prompt_text, response, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id,
		prompt.UserID,
		prompt.PromptText,
		prompt.Response,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting prompt: %w", err)
	}

	for i, f := range prompt.Files {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO prompt_files
			   (prompt_id, position, stored_name, original_name, mime_type, size_bytes, storage_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, f.StoredName, f.OriginalName, f.MimeType, f.SizeBytes, f.StoragePath,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting prompt file %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing prompt: %w", err)
	}

	prompt.ID = id
	prompt.CreatedAt = createdAt
	if prompt.Files == nil {
		prompt.Files = []model.Attachment{}
	}
	return nil
}

// ListByUser returns the newest prompts owned by userID.
//
// The owner filter is part of the method signature; there is no way to list
// someone else's prompts through this type. rowid breaks ties between prompts
// created within the same clock tick, so insertion order decides.
//
// Attachments are fetched with a second query (WHERE prompt_id IN (...))
// rather than a JOIN, which would repeat every prompt row once per file.
func (db *DB) ListByUser(ctx context.Context, userID string, limit int) ([]model.Prompt, error) {
	if limit <= 0 || limit > repository.MaxHistory {
		limit = repository.MaxHistory
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, prompt_text, response, created_at
		 FROM prompts
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing prompts: %w", err)
	}
	defer rows.Close()

	prompts := make([]model.Prompt, 0, limit)
	index := make(map[string]int, limit)
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.UserID, &p.PromptText, &p.Response, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning prompt row: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.Files = []model.Attachment{}
		index[p.ID] = len(prompts)
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating prompt rows: %w", err)
	}
	rows.Close()

	if len(prompts) == 0 {
		return prompts, nil
	}

	if err := db.attachFiles(ctx, prompts, index); err != nil {
		return nil, err
	}
	return prompts, nil
}

func (db *DB) attachFiles(ctx context.Context, prompts []model.Prompt, index map[string]int) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(prompts)), ",")
	args := make([]any, len(prompts))
	for i, p := range prompts {
		args[i] = p.ID
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT prompt_id, stored_name, original_name, mime_type, size_bytes, storage_path
		 FROM prompt_files
		 WHERE prompt_id IN (`+placeholders+`)
		 ORDER BY prompt_id, position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: listing prompt files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var promptID string
		var f model.Attachment
		if err := rows.Scan(&promptID, &f.StoredName, &f.OriginalName, &f.MimeType, &f.SizeBytes, &f.StoragePath); err != nil {
			return fmt.Errorf("sqlite: scanning prompt file row: %w", err)
		}
		i := index[promptID]
		prompts[i].Files = append(prompts[i].Files, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating prompt file rows: %w", err)
	}
	return nil
}
