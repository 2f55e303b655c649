package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"protocell/pkg/domain"
	dErrors "protocell/pkg/domain-errors"
)

// GenerateSecret creates a cryptographically secure random secret,
// base64-encoded for use as a caller credential.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret creates a bcrypt hash of the provided secret for storage.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidArgument, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// VerifySecret checks a plaintext secret against a stored bcrypt hash.
func VerifySecret(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid secret")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}

// Credentials maps caller addresses to hashed secrets and exchanges a
// presented secret for a bearer token. Only the hash is ever stored.
type Credentials struct {
	tokens *Service
	ttl    time.Duration

	mu     sync.RWMutex
	hashes map[domain.Address]string
}

func NewCredentials(tokens *Service, ttl time.Duration) *Credentials {
	return &Credentials{
		tokens: tokens,
		ttl:    ttl,
		hashes: make(map[domain.Address]string),
	}
}

// Register stores the bcrypt hash of a caller's secret, replacing any
// previous one.
func (c *Credentials) Register(caller domain.Address, secret string) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeInvalidArgument, "caller address must not be nil")
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[caller] = hash
	return nil
}

// Exchange verifies a caller's secret and mints a bearer token asserting its
// address. Unknown callers and wrong secrets fail identically.
func (c *Credentials) Exchange(caller domain.Address, secret string) (string, error) {
	c.mu.RLock()
	hash, ok := c.hashes[caller]
	c.mu.RUnlock()
	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid secret")
	}
	if err := VerifySecret(secret, hash); err != nil {
		return "", err
	}
	return c.tokens.GenerateCallerToken(caller, c.ttl)
}
