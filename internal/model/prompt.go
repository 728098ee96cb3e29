package model

import "time"

// Prompt is one submission made by a user: the text they typed, the files
// they attached and the response that was produced for it.
//
// A Prompt is written once and never edited. Files keeps upload order and is
// always a non-nil slice so the JSON output is [] rather than null.
type Prompt struct {
	ID         string       `json:"id"         db:"id"`
	UserID     string       `json:"userId"     db:"user_id"`
	PromptText string       `json:"prompt"     db:"prompt_text"`
	Files      []Attachment `json:"files"`
	Response   string       `json:"response"   db:"response"`
	CreatedAt  time.Time    `json:"createdAt"  db:"created_at"`
}

// Attachment describes a stored upload. StoredName is the generated name the
// blob was written under; OriginalName is what the client sent.
type Attachment struct {
	StoredName   string `json:"filename"     db:"stored_name"`
	OriginalName string `json:"originalName" db:"original_name"`
	MimeType     string `json:"mimetype"     db:"mime_type"`
	SizeBytes    int64  `json:"size"         db:"size_bytes"`
	StoragePath  string `json:"path"         db:"storage_path"`
}
