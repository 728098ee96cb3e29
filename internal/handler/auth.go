package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/clustify-agent/internal/auth"
	"github.com/sakif/clustify-agent/internal/model"
	"github.com/sakif/clustify-agent/internal/service"
)

// AuthHandler serves registration, login and the caller's profile.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account and sign the user in
//   - HandleLogin    → check email + password, issue a session token
//   - HandleProfile  → return the currently authenticated user
//
// DEPENDENCY CHAIN:
//   - svc  *service.AuthService → every auth rule lives there
//   - gate *auth.Gate           → bearer-token check for HandleProfile
type AuthHandler struct {
	svc    *service.AuthService
	gate   *auth.Gate
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(svc *service.AuthService, gate *auth.Gate, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, gate: gate, logger: logger}
}

type registerRequest struct {
	Name     string `json:"name"     validate:"required"`
	Email    string `json:"email"    validate:"required,max=254"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// authResponse is the body of a successful register or login.
type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    *model.User `json:"user"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"name": "Ada", "email": "ada@example.com", "password": "secret1"}
// RESPONSE:     201 {"message": "User created successfully", "token": "...", "user": {...}}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Message: "User created successfully",
		Token:   res.Token,
		User:    res.User,
	})
}

// HandleLogin exchanges credentials for a session token.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email": "ada@example.com", "password": "secret1"}
// RESPONSE:     200 {"message": "Login successful", "token": "...", "user": {...}}
//
// An unknown email and a wrong password both yield 400 invalid_credentials.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message: "Login successful",
		Token:   res.Token,
		User:    res.User,
	})
}

// HandleProfile returns the authenticated user's account.
//
// HTTP: GET /api/user/profile
// Auth: Authorization: Bearer <token>
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.gate.Authenticate(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.svc.Profile(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
