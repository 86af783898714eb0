package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/bookshelf/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. Using a package-private type
// prevents collisions: only THIS package can create a key of type contextKey.
type contextKey string

const identityKey contextKey = "identity"

// ErrorWriter renders an error to the client. The handler package supplies
// one so that auth failures use the same JSON error shape as everything else.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the bearer token from the Authorization header, validates it, and
// stores the caller's Identity in the request context. A missing header is
// reported as apperror.ErrUnauthenticated; a bad header or token as
// apperror.ErrInvalidToken. Either way the chain stops here.
func RequireAuth(tokens *TokenService, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := identityFromRequest(r, tokens)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the authenticated caller from the context.
// Returns (Identity{}, false) if the request is anonymous.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperror.Unauthenticated("authorization token required")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", apperror.InvalidToken("authorization header must be: Bearer <token>")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperror.InvalidToken("authorization header must be: Bearer <token>")
	}
	return token, nil
}

func identityFromRequest(r *http.Request, tokens *TokenService) (Identity, error) {
	token, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return Identity{}, err
	}
	return tokens.Validate(token)
}
