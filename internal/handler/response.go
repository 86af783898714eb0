package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(h.logger, w, http.StatusOK, data)
//   writeError(h.logger, w, r, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//   {"error": "not_found", "message": "book not found with id abc123"}
// Validation failures add a per-field map:
//   {"error": "validation_error", "message": "...", "details": {"rating": "..."}}

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string            `json:"error"`             // machine-readable code, e.g. "not_found"
	Message string            `json:"message"`           // human-readable description
	Details map[string]string `json:"details,omitempty"` // per-field problems
}

// MessageResponse is returned by operations with nothing else to report.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and the status code must be set before the body is written.
// logger may be nil for the fixed-shape router fallbacks.
func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		// Headers are already sent; all we can do is log.
		logger.Warn("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// errorMapping ties each sentinel to its status and machine-readable code.
// Order matters only in that the first match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials"},
	{apperror.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{apperror.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
}

// ErrorWriter returns the error renderer used by handlers and by the auth
// middleware, logging internal failures to logger.
func ErrorWriter(logger *slog.Logger) auth.ErrorWriter {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(logger, w, r, err)
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// errors.As finds the *apperror.AppError for the human-readable message;
// errors.Is picks the status. Anything that isn't an AppError is an internal
// failure: it is logged with the request id and the client gets a generic
// 500 with no detail.
func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, m := range errorMapping {
			if errors.Is(err, m.target) {
				details := appErr.Details
				if len(details) == 0 && appErr.Field != "" {
					details = map[string]string{appErr.Field: appErr.Message}
				}
				writeJSON(logger, w, m.status, ErrorResponse{
					Error:   m.code,
					Message: appErr.Message,
					Details: details,
				})
				return
			}
		}
	}

	logger.ErrorContext(r.Context(), "internal error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)
	writeJSON(logger, w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "an internal error occurred",
	})
}

// decodeJSON reads a single JSON value from the request body into dst.
//
// The body is capped at MaxBodyBytes. Every failure is reported as a
// validation error with a message that names the problem without echoing
// the raw decoder output.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr   *json.SyntaxError
			typeErr     *json.UnmarshalTypeError
			maxBytesErr *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return apperror.ValidationFailed("body", "request body is not valid JSON")
		case errors.As(err, &typeErr):
			field := typeErr.Field
			if field == "" {
				return apperror.ValidationFailed("body", "request body must be a JSON object")
			}
			return apperror.ValidationWithDetails(
				fmt.Sprintf("%s has the wrong type", field),
				map[string]string{field: "must be a " + jsonKind(typeErr.Type.Kind().String())},
			)
		case errors.As(err, &maxBytesErr):
			return apperror.ValidationFailed("body",
				fmt.Sprintf("request body must not exceed %d bytes", maxBytesErr.Limit))
		default:
			return apperror.ValidationFailed("body", "request body could not be decoded")
		}
	}

	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}

func jsonKind(goKind string) string {
	switch {
	case strings.HasPrefix(goKind, "int"), strings.HasPrefix(goKind, "uint"), strings.HasPrefix(goKind, "float"):
		return "number"
	case goKind == "string":
		return "string"
	case goKind == "bool":
		return "boolean"
	case goKind == "slice", goKind == "array":
		return "list"
	default:
		return "object"
	}
}
