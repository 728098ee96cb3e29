// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt), TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Validate registration input and create accounts
//   - Check email + password on login and issue a session token
//   - Keep every auth rule in one place, away from HTTP concerns
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/clustify-agent/internal/apperror"
	"github.com/sakif/clustify-agent/internal/auth"
	"github.com/sakif/clustify-agent/internal/metrics"
	"github.com/sakif/clustify-agent/internal/model"
	"github.com/sakif/clustify-agent/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxNameLength     = 100
	MaxEmailLength    = 254
)

// validate is shared; validator.Validate caches struct metadata and is safe
// for concurrent use.
var validate = validator.New()

// AuthService handles registration, login and profile lookups.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository → read/write user records
//   - passwords  *auth.PasswordService     → bcrypt hashing
//   - tokens     *auth.TokenService        → issue session tokens
//   - metrics    *metrics.Metrics          → may be nil
//   - logger     *slog.Logger              → structured logging
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	metrics   *metrics.Metrics
	logger    *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		metrics:   m,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued token so the handler
// can respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an account and signs the new user in.
//
// RULES:
//   - name: required, at most 100 characters
//   - email: required, valid address; stored trimmed and lower-cased
//   - password: at least 6 characters, at most 72 bytes (bcrypt's limit)
//
// Duplicate emails are detected by the store's UNIQUE constraint, not by a
// lookup here, so concurrent registrations of one address cannot both pass.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if err := validateRegistration(name, email, password); err != nil {
		s.metrics.AuthAttempt("register", metrics.ResultRejected)
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		s.logger.Error("hashing password failed", "error", err)
		s.metrics.AuthAttempt("register", metrics.ResultError)
		return nil, apperror.Persistence("create user", err)
	}

	user := &model.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateAccount) {
			s.metrics.AuthAttempt("register", metrics.ResultRejected)
			return nil, err
		}
		s.logger.Error("creating user failed", "error", err)
		s.metrics.AuthAttempt("register", metrics.ResultError)
		return nil, apperror.Persistence("create user", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("issuing token failed", "user_id", user.ID, "error", err)
		s.metrics.AuthAttempt("register", metrics.ResultError)
		return nil, apperror.Persistence("issue token", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	s.metrics.AuthAttempt("register", metrics.ResultOK)
	return &AuthResult{User: user, Token: token}, nil
}

// Login checks credentials and issues a session token.
//
// ACCOUNT ENUMERATION:
// An unknown email and a wrong password produce the same InvalidCredentials
// error. Timing would still tell them apart (bcrypt takes ~250ms, a missed
// lookup takes microseconds), so for an unknown email we run one bcrypt
// comparison against a throwaway hash before answering.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.metrics.AuthAttempt("login", metrics.ResultRejected)
		return nil, apperror.ValidationFailed("email", "Email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Verify(password, s.dummy())
			s.metrics.AuthAttempt("login", metrics.ResultRejected)
			return nil, apperror.InvalidCredentials()
		}
		s.logger.Error("looking up user failed", "error", err)
		s.metrics.AuthAttempt("login", metrics.ResultError)
		return nil, apperror.Persistence("look up user", err)
	}

	if !s.passwords.Verify(password, user.PasswordHash) {
		s.logger.Info("login rejected", "user_id", user.ID)
		s.metrics.AuthAttempt("login", metrics.ResultRejected)
		return nil, apperror.InvalidCredentials()
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("issuing token failed", "user_id", user.ID, "error", err)
		s.metrics.AuthAttempt("login", metrics.ResultError)
		return nil, apperror.Persistence("issue token", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	s.metrics.AuthAttempt("login", metrics.ResultOK)
	return &AuthResult{User: user, Token: token}, nil
}

// Profile returns the account of an authenticated caller.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("loading profile failed", "user_id", userID, "error", err)
		return nil, apperror.Persistence("load profile", err)
	}
	return user, nil
}

// dummy returns a valid bcrypt hash at the service's cost, computed once.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash("clustify-timing-equaliser")
		if err != nil {
			s.logger.Error("computing dummy hash failed", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(name, email, password string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "Name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return apperror.ValidationFailed("name", "Name must be 100 characters or fewer")
	}
	if email == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}
	if len(email) > MaxEmailLength || validate.Var(email, "email") != nil {
		return apperror.ValidationFailed("email", "Email is not valid")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperror.ValidationFailed("password", "Password must be at least 6 characters")
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	return nil
}
