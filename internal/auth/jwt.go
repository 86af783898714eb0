// Package auth provides password hashing, bearer token issuing/verification,
// and the HTTP middleware that attaches the caller's identity to a request.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client POSTs email + password to /auth/register or /auth/login
//  2. Server checks the bcrypt hash and issues a signed JWT
//  3. Client stores the token and sends it back on every call as
//     "Authorization: Bearer <token>"
//  4. RequireAuth validates the token and stores an Identity in the request
//     context; handlers read it with IdentityFromContext
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims (data) → {"sub":"userID","role":"user","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The server can verify the signature without any DB lookup, just the secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/model"
)

const (
	issuer = "bookshelf"

	// DefaultTokenTTL is used when NewTokenService is given a non-positive ttl.
	DefaultTokenTTL = 24 * time.Hour
)

// Identity is what a verified token tells us about the caller.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == model.RoleAdmin
}

// CanModify reports whether the caller may mutate a resource owned by ownerID.
// An empty owner can only be modified by admins.
func (i Identity) CanModify(ownerID string) bool {
	if i.IsAdmin() {
		return true
	}
	return ownerID != "" && ownerID == i.UserID
}

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations. Keep it safe, rotate it
// periodically in production.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and token lifetime.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims is the JWT payload. It embeds jwt.RegisteredClaims which includes
// standard fields like Issuer, Subject, ExpiresAt, IssuedAt.
//
// "sub" carries the internal user ID; Role rides along so ownership checks
// don't need a user lookup on every request.
type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TTL returns how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate creates and signs a new access token for the given user.
func (s *TokenService) Generate(userID, role string) (string, error) {
	return s.GenerateWithDuration(userID, role, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID, role string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
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

// Validate parses and verifies a JWT string and returns the caller's Identity.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future, and present)
//   - Issuer matches (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// Every failure is an apperror.ErrInvalidToken.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, apperror.InvalidToken("token is empty")
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperror.InvalidToken("token expired")
		}
		return Identity{}, apperror.InvalidToken("token is invalid")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, apperror.InvalidToken("token claims are invalid")
	}
	if c.Subject == "" {
		return Identity{}, apperror.InvalidToken("token has no subject")
	}

	role := c.Role
	if role == "" {
		role = model.RoleUser
	}
	return Identity{UserID: c.Subject, Role: role}, nil
}
