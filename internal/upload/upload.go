// Package upload enforces the attachment policy on multipart file parts.
//
// Validation happens before anything is written anywhere: a rejected request
// leaves no trace in blob storage or the database.
package upload

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/clustify-agent/internal/apperror"
)

const (
	DefaultMaxFiles    = 10
	DefaultMaxFileSize = 10 << 20 // 10 MiB

	fallbackMimeType = "application/octet-stream"
)

// DefaultExtensions are the attachment types accepted out of the box.
var DefaultExtensions = []string{".txt", ".docker"}

// Policy is the attachment rule set. Extensions are compared lower-cased and
// include the leading dot.
type Policy struct {
	AllowedExtensions []string
	MaxFiles          int
	MaxFileSize       int64
}

// DefaultPolicy returns the stock policy: .txt and .docker, ten files, 10 MiB each.
func DefaultPolicy() Policy {
	return Policy{
		AllowedExtensions: append([]string(nil), DefaultExtensions...),
		MaxFiles:          DefaultMaxFiles,
		MaxFileSize:       DefaultMaxFileSize,
	}
}

// Accepted is a file part that passed validation together with the name it
// will be stored under.
type Accepted struct {
	StoredName   string
	OriginalName string
	MimeType     string
	SizeBytes    int64

	header *multipart.FileHeader
}

// Open returns the part's content.
func (a Accepted) Open() (io.ReadCloser, error) {
	return a.header.Open()
}

// Validator checks uploads against a Policy.
type Validator struct {
	policy  Policy
	allowed map[string]struct{}
	newName func() string
}

func NewValidator(p Policy) *Validator {
	if p.MaxFiles <= 0 {
		p.MaxFiles = DefaultMaxFiles
	}
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = DefaultMaxFileSize
	}
	if len(p.AllowedExtensions) == 0 {
		p.AllowedExtensions = append([]string(nil), DefaultExtensions...)
	}

	allowed := make(map[string]struct{}, len(p.AllowedExtensions))
	for _, ext := range p.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Validator{
		policy:  p,
		allowed: allowed,
		newName: func() string { return uuid.NewString() },
	}
}

func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate checks files in upload order and returns them as Accepted entries
// in the same order. Zero files is valid.
//
// ORDER OF CHECKS:
//  1. count       → too_many_files
//  2. per file, extension (case-insensitive) → bad_extension
//  3. per file, size                         → too_large
//
// The first violation rejects the whole batch.
func (v *Validator) Validate(files []*multipart.FileHeader) ([]Accepted, error) {
	if len(files) > v.policy.MaxFiles {
		return nil, apperror.UploadRejected(apperror.ReasonTooManyFiles,
			fmt.Sprintf("Too many files: at most %d allowed", v.policy.MaxFiles))
	}

	accepted := make([]Accepted, 0, len(files))
	for _, fh := range files {
		original := filepath.Base(fh.Filename)
		ext := filepath.Ext(original)
		lowerExt := strings.ToLower(ext)

		if _, ok := v.allowed[lowerExt]; !ok {
			return nil, apperror.UploadRejected(apperror.ReasonBadExtension,
				fmt.Sprintf("Only %s files are allowed", strings.Join(v.policy.AllowedExtensions, " and ")))
		}
		if fh.Size > v.policy.MaxFileSize {
			return nil, apperror.UploadRejected(apperror.ReasonTooLarge,
				fmt.Sprintf("File %q exceeds the %d byte limit", original, v.policy.MaxFileSize))
		}

		accepted = append(accepted, Accepted{
			StoredName:   v.newName() + ext,
			OriginalName: original,
			MimeType:     mimeTypeOf(fh, lowerExt),
			SizeBytes:    fh.Size,
			header:       fh,
		})
	}

	return accepted, nil
}

// mimeTypeOf prefers the Content-Type the client sent for the part, then the
// extension table, then application/octet-stream.
func mimeTypeOf(fh *multipart.FileHeader, ext string) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
	}
	return fallbackMimeType
}
