package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// WHY HELPERS?
// Without helpers, every handler repeats the same boilerplate:
//   w.Header().Set("Content-Type", "application/json")
//   w.WriteHeader(statusCode)
//   json.NewEncoder(w).Encode(data)
//
// With helpers, handlers are cleaner and more consistent:
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, h.logger, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "upload_rejected", "message": "File type not allowed", "reason": "bad_extension"}
//
// "reason" only appears on upload rejections. The browser client can switch
// on "error" without ever parsing the human-readable message.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/clustify-agent/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`            // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`          // Human-readable description
	Reason  string `json:"reason,omitempty"` // Upload rejection sub-code
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
// Any header changes after that are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorMapping is the HTTP face of one apperror kind.
type errorMapping struct {
	kind   error
	status int
	code   string
}

// errorMappings is checked in order; the first kind found in the error chain wins.
var errorMappings = []errorMapping{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrDuplicateAccount, http.StatusBadRequest, "duplicate_account"},
	{apperror.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials"},
	{apperror.ErrUploadRejected, http.StatusBadRequest, "upload_rejected"},
	{apperror.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// This is where domain errors (from the service layer) get translated to HTTP.
// The service layer never knows about status codes; it returns
// apperror kinds and this function turns them into 400, 401, 404 and so on.
//
// errors.Is() UNWRAPPING:
// errors.Is(err, target) walks the entire error chain (via Unwrap())
// to see if `target` appears anywhere:
//
//	service returns: apperror.UploadRejected("too_large", "...")
//	which is:        AppError{Err: ErrUploadRejected, Reason: "too_large"}
//	errors.Is walks: AppError → ErrUploadRejected ✓ match!
//
// Persistence and upstream failures, and anything unrecognised, become a
// generic 500. The real cause is logged here and never sent to the client:
// it may contain SQL, file paths or upstream URLs.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "payload_too_large",
			Message: "Request body is too large",
		})
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, m := range errorMappings {
			if errors.Is(err, m.kind) {
				writeJSON(w, m.status, ErrorResponse{
					Error:   m.code,
					Message: appErr.Message,
					Reason:  appErr.Reason,
				})
				return
			}
		}
	}

	if logger != nil {
		logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
