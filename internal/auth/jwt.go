// Package auth provides password hashing, session tokens and the request gate
// that protects the user and prompt endpoints.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client registers or logs in with email + password
//  2. Server checks the password against the stored bcrypt hash
//  3. Server issues a signed session token (JWT) valid for 24 hours
//  4. Client sends it back on every protected call:
//     Authorization: Bearer <token>
//  5. Each protected handler asks the Gate to verify the token and gets back
//     the caller's Identity (user ID + email)
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<userID>","email":"a@b.c","exp":1234567890,...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The server can verify the signature without any DB lookup — just the secret.
// There is no revocation list: a token stays valid until it expires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/clustify-agent/internal/model"
)

const (
	// DefaultTokenTTL is how long an issued session token stays valid.
	DefaultTokenTTL = 24 * time.Hour

	issuer = "clustify-agent"

	minSecretLen = 16
)

// ErrInvalidToken is returned by Verify for every kind of failure: bad
// signature, malformed input, expiry, wrong algorithm or wrong issuer.
// Callers never need to tell these apart.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens. The secret is
// loaded once from configuration and never changes while the process runs.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// A ttl of zero selects DefaultTokenTTL.
//
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLen)
	}
	if ttl < 0 {
		return nil, errors.New("auth: token lifetime must not be negative")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Claims is the verified content of a session token.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// tokenClaims is the JWT payload. "sub" carries the user ID; email rides
// along as a private claim so the gate can hand it to handlers without a
// DB lookup.
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issue creates and signs a session token for the given user.
//
// Signing algorithm: HS256 (HMAC-SHA256)
// - Symmetric: same key for signing and verifying
// - Fast and simple — good for single-server deployments
func (s *TokenService) Issue(user *model.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("auth: cannot issue token without a user id")
	}

	now := s.now()
	c := tokenClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and checks a token string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired and carries an expiry at all
//   - Issuer matches (prevents tokens minted for other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks such as "none")
//
// Any failure collapses into ErrInvalidToken.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	c, ok := token.Claims.(*tokenClaims)
	if !ok || c.Subject == "" || c.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:    c.Subject,
		Email:     c.Email,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
