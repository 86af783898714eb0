package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/service"
)

// AuthRecorder counts register and login outcomes. *metrics.Metrics
// satisfies it; a nil AuthRecorder is allowed.
type AuthRecorder interface {
	RecordAuth(event, result string)
}

// AuthHandler manages account registration, login and the self view.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account and sign the caller in
//   - HandleLogin    → exchange email + password for a bearer token
//   - HandleMe       → return the currently authenticated user's profile
//
// The handler only decodes and encodes; every rule lives in AuthService.
type AuthHandler struct {
	auth     *service.AuthService
	recorder AuthRecorder
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(auth *service.AuthService, recorder AuthRecorder, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		recorder: recorder,
		logger:   logger,
	}
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Message string           `json:"message"`
	User    model.PublicUser `json:"user"`
	Token   string           `json:"token"`
}

// HandleRegister creates an account.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"email": "a@x.com", "password": "secret1", "name": "A"}
// RESPONSE: 201 {"message": "...", "user": {...}, "token": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.record("register", err)
		writeError(h.logger, w, r, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in)
	h.record("register", err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(h.logger, w, http.StatusCreated, AuthResponse{
		Message: "user registered successfully",
		User:    res.User.Public(),
		Token:   res.Token,
	})
}

// HandleLogin signs a user in.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email": "a@x.com", "password": "secret1"}
// RESPONSE: 200 {"message": "...", "user": {...}, "token": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.record("login", err)
		writeError(h.logger, w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in)
	h.record("login", err)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, AuthResponse{
		Message: "login successful",
		User:    res.User.Public(),
		Token:   res.Token,
	})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /auth/me
// Auth: Required (RequireAuth middleware sets the Identity in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())

	user, err := h.auth.Me(r.Context(), id)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, user.Public())
}

// record reports the outcome of an auth attempt: "success", "rejected" for
// client errors, "error" for everything else.
func (h *AuthHandler) record(event string, err error) {
	if h.recorder == nil {
		return
	}
	result := "success"
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			result = "rejected"
		} else {
			result = "error"
		}
	}
	h.recorder.RecordAuth(event, result)
}
