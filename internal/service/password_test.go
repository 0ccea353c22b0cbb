package service

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "secret1" {
		t.Fatal("hash must not equal the secret")
	}
	if err := h.Verify(hash, "secret1"); err != nil {
		t.Errorf("Verify correct password: %v", err)
	}
	if err := h.Verify(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify wrong password: expected ErrPasswordMismatch, got %v", err)
	}
}

func TestHasherRejectsEmptySecret(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestHasherCorruptHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	err := h.Verify("not-a-bcrypt-hash", "secret1")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected a non-mismatch error for a corrupt hash, got %v", err)
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	h := NewHasher(99)
	if h.cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", h.cost, bcrypt.DefaultCost)
	}
}
