package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceWithCost(bcrypt.MinCost)
}

// =========================================================================
// HASH TESTS
// =========================================================================

func TestHash_LooksLikeBcrypt(t *testing.T) {
	hash, err := newTestPasswordService().Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
	if strings.Contains(hash, "password123") {
		t.Error("Hash() leaked the plaintext")
	}
}

func TestHash_IsSalted(t *testing.T) {
	ps := newTestPasswordService()

	h1, _ := ps.Hash("same-password")
	h2, _ := ps.Hash("same-password")
	if h1 == h2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordLength)); err != nil {
		t.Errorf("Hash() rejected a %d-byte password: %v", MaxPasswordLength, err)
	}
	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordLength+1)); err == nil {
		t.Error("Hash() accepted a password over the bcrypt limit")
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	cases := []struct {
		name     string
		hash     string
		password string
		wantErr  error
	}{
		{"correct", hash, "correct-horse-battery-staple", nil},
		{"wrong", hash, "tr0ub4dor&3", ErrPasswordMismatch},
		{"empty", hash, "", ErrPasswordMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ps.Verify(tc.hash, tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestVerify_GarbageHash(t *testing.T) {
	err := newTestPasswordService().Verify("not-a-bcrypt-hash", "password")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() error = %v, want a non-mismatch error", err)
	}
}
