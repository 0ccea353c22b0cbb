package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var errEmptyPassword = errors.New("password must not be empty")

// Hasher hashes and verifies admin passwords with bcrypt.
type Hasher struct {
	cost int

	// dummy is compared against when no account matches a login, so unknown
	// emails cost as much as wrong passwords.
	dummy []byte
}

// NewHasher returns a Hasher using the given bcrypt cost. Out of range values
// fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("vitrine-dummy-password"), cost)
	return &Hasher{cost: cost, dummy: dummy}
}

// Hash returns the bcrypt hash of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errEmptyPassword
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify checks secret against hash. A mismatch yields ErrPasswordMismatch;
// any other error means the stored hash is unusable.
func (h *Hasher) Verify(hash, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

// burn spends the same work as a real Verify call.
func (h *Hasher) burn(secret string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
}
