package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeObjectAPI records calls instead of talking to S3.
type fakeObjectAPI struct {
	objects map[string]string
	putErr  error
}

func newFakeObjectAPI() *fakeObjectAPI {
	return &fakeObjectAPI{objects: make(map[string]string)}
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestS3Store(api objectAPI) *S3Store {
	s := newS3Store(api, "attachments")
	s.now = func() time.Time { return time.Date(2025, 3, 7, 23, 59, 0, 0, time.UTC) }
	return s
}

func TestS3Store_PutUsesDatedKey(t *testing.T) {
	api := newFakeObjectAPI()
	s := newTestS3Store(api)

	key, err := s.Put(context.Background(), "abc.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if key != "uploads/2025/03/07/abc.txt" {
		t.Errorf("Put() key = %q, want %q", key, "uploads/2025/03/07/abc.txt")
	}
	if got := api.objects["attachments/"+key]; got != "hello" {
		t.Errorf("stored object = %q, want %q", got, "hello")
	}
}

func TestS3Store_PutError(t *testing.T) {
	api := newFakeObjectAPI()
	api.putErr = errors.New("access denied")
	s := newTestS3Store(api)

	if _, err := s.Put(context.Background(), "abc.txt", strings.NewReader("x")); err == nil {
		t.Fatal("Put() should surface the client error")
	}
}

func TestS3Store_Delete(t *testing.T) {
	api := newFakeObjectAPI()
	s := newTestS3Store(api)

	key, _ := s.Put(context.Background(), "abc.txt", strings.NewReader("x"))
	if err := s.Delete(context.Background(), key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(api.objects) != 0 {
		t.Errorf("objects left after Delete(): %v", api.objects)
	}
}

func TestS3Store_RejectsForeignKeys(t *testing.T) {
	s := newTestS3Store(newFakeObjectAPI())

	if err := s.Delete(context.Background(), "other/prefix/abc.txt"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Delete() error = %v, want ErrInvalidName", err)
	}
	if _, err := s.Put(context.Background(), "../abc.txt", strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Put() error = %v, want ErrInvalidName", err)
	}
}
