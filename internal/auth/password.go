package auth

// Stored hashes are full bcrypt strings ($2a$<cost>$<salt><hash>), so the
// salt and cost travel with each row and a cost change only affects new
// registrations.

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used in production.
const DefaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer inputs are rejected
// rather than silently truncated.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService provides bcrypt hashing and verification.
//
// The cost comes from BCRYPT_COST; tests use the minimum.
type PasswordService struct {
	cost int
	// dummyHash is compared against when a login names an unknown email,
	// so the response takes as long as a real mismatch.
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with the given cost.
// A cost outside bcrypt's allowed range falls back to DefaultCost.
func NewPasswordService(cost int) (*PasswordService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("bookshelf-timing-equalizer"), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: preparing dummy hash: %w", err)
	}
	return &PasswordService{cost: cost, dummyHash: dummy}, nil
}

// NewPasswordServiceForTest creates a PasswordService with bcrypt cost 4
// (the minimum allowed). Use this in tests in other packages to avoid the
// ~250ms overhead of cost 12 per hashing operation.
//
// Do NOT use in production: cost 4 is far too weak.
func NewPasswordServiceForTest() *PasswordService {
	ps, err := NewPasswordService(bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return ps
}

// Cost returns the bcrypt work factor in use.
func (p *PasswordService) Cost() int {
	return p.cost
}

// Hash hashes the given plaintext password with bcrypt.
// Returns an error if the plaintext is too long (over 72 bytes, the bcrypt limit).
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
// Returns nil on match and ErrPasswordMismatch on a wrong password.
//
// bcrypt.CompareHashAndPassword compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// VerifyDummy burns the same CPU as a real Verify and always fails.
// Call it when the account doesn't exist.
func (p *PasswordService) VerifyDummy(plaintext string) error {
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
	return ErrPasswordMismatch
}
