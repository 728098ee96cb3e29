package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/clustify-agent/internal/apperror"
	"github.com/sakif/clustify-agent/internal/auth"
)

// newTestAuthService returns an AuthService wired with fake dependencies and
// bcrypt cost 4 so tests run in milliseconds.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) (*AuthService, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-that-is-long-enough", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(repo, auth.NewPasswordServiceForTest(), tokens, nil, discardLogger()), tokens
}

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc, tokens := newTestAuthService(t, repo)

	res, err := svc.Register(context.Background(), "  Ada Lovelace ", " Ada@Example.COM ", "secret1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if res.User.ID == "" {
		t.Error("Register() returned user without ID")
	}
	if res.User.Name != "Ada Lovelace" {
		t.Errorf("Name = %q, want trimmed %q", res.User.Name, "Ada Lovelace")
	}
	if res.User.Email != "ada@example.com" {
		t.Errorf("Email = %q, want normalised %q", res.User.Email, "ada@example.com")
	}
	if res.User.PasswordHash == "secret1" || !strings.HasPrefix(res.User.PasswordHash, "$2") {
		t.Errorf("PasswordHash = %q, want a bcrypt hash", res.User.PasswordHash)
	}

	claims, err := tokens.Verify(res.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != res.User.ID || claims.Email != "ada@example.com" {
		t.Errorf("claims = %+v, want user %q", claims, res.User.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name      string
		userName  string
		email     string
		password  string
		wantField string
	}{
		{"empty name", "", "a@example.com", "secret1", "name"},
		{"blank name", "   ", "a@example.com", "secret1", "name"},
		{"name too long", strings.Repeat("n", MaxNameLength+1), "a@example.com", "secret1", "name"},
		{"empty email", "Ada", "", "secret1", "email"},
		{"malformed email", "Ada", "not-an-email", "secret1", "email"},
		{"short password", "Ada", "a@example.com", "12345", "password"},
		{"password over 72 bytes", "Ada", "a@example.com", strings.Repeat("p", 73), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeUserRepo()
			svc, _ := newTestAuthService(t, repo)

			_, err := svc.Register(context.Background(), tt.userName, tt.email, tt.password)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want validation error", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
			if len(repo.users) != 0 {
				t.Error("Register() stored a user despite invalid input")
			}
		})
	}
}

func TestRegister_PasswordExactlySixCharacters(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.Register(context.Background(), "Ada", "a@example.com", "123456"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	if _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "secret1"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err := svc.Register(context.Background(), "Imposter", "ADA@example.com", "secret2")
	if !errors.Is(err, apperror.ErrDuplicateAccount) {
		t.Fatalf("second Register() error = %v, want ErrDuplicateAccount", err)
	}
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), "Racer", "race@example.com", "secret1")
		}(i)
	}
	wg.Wait()

	ok, dupes := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperror.ErrDuplicateAccount):
			dupes++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dupes != n-1 {
		t.Errorf("ok = %d, duplicates = %d; want 1 and %d", ok, dupes, n-1)
	}
}

func TestRegister_StoreFailureIsPersistenceError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.failErr = errors.New("database is locked")
	svc, _ := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "secret1")
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Fatalf("Register() error = %v, want ErrPersistence", err)
	}
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc, tokens := newTestAuthService(t, repo)
	reg, _ := svc.Register(context.Background(), "Ada", "ada@example.com", "secret1")

	res, err := svc.Login(context.Background(), "ADA@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.User.ID != reg.User.ID {
		t.Errorf("Login() user = %q, want %q", res.User.ID, reg.User.ID)
	}
	if _, err := tokens.Verify(res.Token); err != nil {
		t.Errorf("Login() token does not verify: %v", err)
	}
}

// Unknown email and wrong password must be indistinguishable.
func TestLogin_FailuresLookIdentical(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	svc.Register(context.Background(), "Ada", "ada@example.com", "secret1")

	_, wrongPass := svc.Login(context.Background(), "ada@example.com", "wrong-pass")
	_, unknown := svc.Login(context.Background(), "nobody@example.com", "secret1")

	for name, err := range map[string]error{"wrong password": wrongPass, "unknown email": unknown} {
		if !errors.Is(err, apperror.ErrInvalidCredentials) {
			t.Errorf("%s: error = %v, want ErrInvalidCredentials", name, err)
		}
	}
	if wrongPass.Error() != unknown.Error() {
		t.Errorf("messages differ: %q vs %q", wrongPass.Error(), unknown.Error())
	}
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.Login(context.Background(), "", "secret1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Login(empty email) error = %v, want ErrValidation", err)
	}
	_, err = svc.Login(context.Background(), "ada@example.com", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Login(empty password) error = %v, want ErrValidation", err)
	}
}

func TestLogin_StoreFailureIsPersistenceError(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	repo.failErr = errors.New("disk I/O error")

	_, err := svc.Login(context.Background(), "ada@example.com", "secret1")
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Fatalf("Login() error = %v, want ErrPersistence", err)
	}
}

// =========================================================================
// Profile TESTS
// =========================================================================

func TestProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo)
	reg, _ := svc.Register(context.Background(), "Ada", "ada@example.com", "secret1")

	u, err := svc.Profile(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if u.Email != "ada@example.com" {
		t.Errorf("Profile() email = %q", u.Email)
	}

	if _, err := svc.Profile(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Profile(missing) error = %v, want ErrNotFound", err)
	}
}
