package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/clustify-agent/internal/apperror"
	"github.com/sakif/clustify-agent/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// Using fakes (not a mock framework) keeps tests easy to read — you can see
// exactly what each fake does.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory repository.UserRepository. Emails are
// matched case-insensitively like the real store.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User // keyed by ID
	nextID  int
	failErr error // returned by every method when set
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperror.DuplicateAccount()
		}
	}
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.JoinDate = time.Now().UTC()
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

// fakePromptRepo keeps prompts in insertion order.
type fakePromptRepo struct {
	prompts   []model.Prompt
	createErr error
	listErr   error
	lastLimit int
}

func (f *fakePromptRepo) CreatePrompt(_ context.Context, p *model.Prompt) error {
	if f.createErr != nil {
		return f.createErr
	}
	p.ID = fmt.Sprintf("prompt-%d", len(f.prompts)+1)
	p.CreatedAt = time.Now().UTC()
	f.prompts = append(f.prompts, *p)
	return nil
}

func (f *fakePromptRepo) ListByUser(_ context.Context, userID string, limit int) ([]model.Prompt, error) {
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Prompt{}
	for i := len(f.prompts) - 1; i >= 0 && len(out) < limit; i-- {
		if f.prompts[i].UserID == userID {
			out = append(out, f.prompts[i])
		}
	}
	return out, nil
}

// fakeStore is an in-memory storage.Store. failOnPut makes the Nth Put
// (1-based) fail.
type fakeStore struct {
	blobs     map[string]string
	puts      int
	failOnPut int
	deleted   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string]string)}
}

func (f *fakeStore) Put(_ context.Context, name string, r io.Reader) (string, error) {
	f.puts++
	if f.failOnPut == f.puts {
		return "", errors.New("disk full")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	path := "mem/" + name
	f.blobs[path] = string(b)
	return path, nil
}

func (f *fakeStore) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	delete(f.blobs, path)
	return nil
}

// fakeResponder returns a fixed answer or error and records what it saw.
type fakeResponder struct {
	answer    string
	err       error
	calls     int
	lastText  string
	lastFiles []model.Attachment
}

func (f *fakeResponder) Respond(_ context.Context, text string, files []model.Attachment) (string, error) {
	f.calls++
	f.lastText = text
	f.lastFiles = files
	return f.answer, f.err
}

type testFile struct {
	name string
	body string
}

// multipartFiles encodes files as a multipart form and parses it back,
// producing the *multipart.FileHeader values a handler would pass in.
func multipartFiles(t *testing.T, files ...testFile) []*multipart.FileHeader {
	t.Helper()
	if len(files) == 0 {
		return nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		io.WriteString(fw, f.body)
	}
	w.Close()

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files"]
}
