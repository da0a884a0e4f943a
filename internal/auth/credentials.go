package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserFinder is the credential store consumed by the validator.
type UserFinder interface {
	UserByEmail(ctx context.Context, email string) (User, error)
}

// CredentialValidator checks email/password pairs and fails closed.
type CredentialValidator struct {
	users UserFinder
	log   *zap.Logger
}

func NewCredentialValidator(users UserFinder, log *zap.Logger) *CredentialValidator {
	if log == nil {
		log = zap.NewNop()
	}
	return &CredentialValidator{users: users, log: log}
}

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// decoy keeps the response time of unknown emails close to a real comparison.
func decoy(password string) {
	decoyOnce.Do(func() {
		decoyHash, _ = bcrypt.GenerateFromPassword([]byte("decoy-password-for-timing"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(decoyHash, []byte(password))
}

// Validate returns the sanitized user on success. Absent, inactive, credential-less and
// mismatched users all produce ErrInvalidCredentials.
func (v *CredentialValidator) Validate(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	user, err := v.users.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			v.log.Error("credential lookup failed", zap.Error(err))
		}
		decoy(password)
		return User{}, ErrInvalidCredentials
	}
	if !user.Active || user.PasswordHash == "" {
		decoy(password)
		return User{}, ErrInvalidCredentials
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user.Sanitized(), nil
}

// NormalizeEmail lowercases and trims an address for exact-match lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
