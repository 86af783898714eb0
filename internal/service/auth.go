// Package service: authentication business logic.
//
// AuthService is the business logic layer for accounts. It sits between the
// HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt), TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Register: validate, hash the password, store the account, issue a token
//   - Login: verify credentials without revealing which part was wrong
//   - Me: resolve a verified token back to the stored account
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
	"github.com/sakif/bookshelf/internal/validation"
)

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name"     validate:"max=100"`
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult bundles the account with a freshly issued token.
type AuthResult struct {
	User  *model.User
	Token string
}

// AuthService handles registration, login and identity lookup.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → issue JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - validator  *validation.Validator      → request schema checks
//   - admins     set of lower-cased emails that register as admins
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	validator *validation.Validator
	admins    map[string]struct{}
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	validator *validation.Validator,
	adminEmails []string,
	logger *slog.Logger,
) *AuthService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		validator: validator,
		admins:    admins,
		logger:    logger,
	}
}

// Register creates an account and signs the caller in.
//
// The plaintext password only ever reaches PasswordService.Hash; the stored
// record carries the bcrypt hash. Returns apperror.ErrConflict when the
// email is already registered (compared case-insensitively).
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	// bcrypt's limit is in bytes; the tag above counts characters.
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         model.RoleUser,
	}
	if _, ok := s.admins[in.Email]; ok {
		user.Role = model.RoleAdmin
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("role", user.Role),
	)

	return s.issue(user)
}

// Login verifies credentials and issues a token.
//
// An unknown email and a wrong password fail with the same
// apperror.ErrInvalidCredentials, and both spend one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.VerifyDummy(in.Password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("login rejected", slog.String("userID", user.ID))
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// Me returns the account behind a verified identity.
// Fails with apperror.ErrNotFound if the account no longer exists.
func (s *AuthService) Me(ctx context.Context, id auth.Identity) (*model.User, error) {
	if id.UserID == "" {
		return nil, apperror.Unauthenticated("authorization token required")
	}
	user, err := s.users.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id.UserID, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
