package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/clustify-agent/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "identity", id), ANY package that knows the string
// can read or shadow your value. Using a package-private type prevents
// collisions: only THIS package can create a key of type contextKey.
type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID string
	Email  string
}

// TokenVerifier is the part of TokenService the gate needs.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

var _ TokenVerifier = (*TokenService)(nil)

// Gate decides whether a request carries a valid session token.
//
// It is NOT a middleware. Each protected handler calls Authenticate as its
// first step and returns early on error:
//
//	id, err := h.gate.Authenticate(r)
//	if err != nil {
//	    writeError(w, h.logger, err)
//	    return
//	}
//
// Authenticate only reads the request, so it can be tested without a router.
//
// TWO FAILURE KINDS:
//   - no usable "Authorization: Bearer <token>" header → Unauthenticated (401)
//   - a token is present but fails verification       → Forbidden (403)
//
// The distinction mirrors what the browser client already expects.
type Gate struct {
	tokens TokenVerifier
}

func NewGate(tokens TokenVerifier) *Gate {
	return &Gate{tokens: tokens}
}

// Authenticate extracts and verifies the bearer token of r.
func (g *Gate) Authenticate(r *http.Request) (Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		return Identity{}, apperror.Unauthenticated("Access token required")
	}

	claims, err := g.tokens.Verify(token)
	if err != nil {
		return Identity{}, apperror.Forbidden("Invalid or expired token")
	}

	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the caller attached by WithIdentity.
// Returns (Identity{}, false) for anonymous contexts.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// bearerToken reads "Authorization: Bearer <token>". The scheme is matched
// case-insensitively; an empty token counts as missing.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
