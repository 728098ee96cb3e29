// Package storage writes attachment blobs.
//
// Two backends implement Store: DiskStore (the default, a local directory)
// and S3Store (any S3-compatible object store, MinIO included). The pipeline
// only sees the interface, so tests swap in an in-memory fake.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Store persists blobs under generated names.
//
// Put returns the location the blob was written to; that string is recorded
// on the attachment and is what Delete expects back.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, path string) error
}

// ErrInvalidName is returned for names that could escape the storage root.
var ErrInvalidName = errors.New("storage: invalid blob name")

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.Contains(name, "\x00")
}
