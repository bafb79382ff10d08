// Package password derives and verifies salted PBKDF2-HMAC-SHA256 password hashes
// and enforces password strength rules.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the salt length in bytes (256 bits).
	SaltSize = 32
	// KeySize is the derived hash length in bytes.
	KeySize = 32
	// DefaultIterations is the PBKDF2 cost for new hashes.
	DefaultIterations = 120_000
)

var ErrInvalidSalt = errors.New("invalid salt length")

// Credential is a stored password hash together with the parameters needed to
// recompute it. Iterations is versioned per credential so raising the cost
// never breaks verification of older hashes.
type Credential struct {
	Hash       []byte
	Salt       []byte
	Iterations int
}

// Hasher hashes passwords at a fixed iteration count.
type Hasher struct {
	iterations int
}

// NewHasher returns a Hasher using iterations rounds; values below 1 fall back
// to DefaultIterations.
func NewHasher(iterations int) *Hasher {
	if iterations < 1 {
		iterations = DefaultIterations
	}
	return &Hasher{iterations: iterations}
}

// Iterations returns the cost used for new hashes.
func (h *Hasher) Iterations() int {
	return h.iterations
}

// Hash derives a hash for password. When salt is nil a fresh random salt is generated.
func (h *Hasher) Hash(password string, salt []byte) (Credential, error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return Credential{}, fmt.Errorf("failed to generate salt: %w", err)
		}
	} else if len(salt) != SaltSize {
		return Credential{}, fmt.Errorf("%w: got %d bytes", ErrInvalidSalt, len(salt))
	}

	return Credential{
		Hash:       derive(password, salt, h.iterations),
		Salt:       salt,
		Iterations: h.iterations,
	}, nil
}

// Verify recomputes the hash of password with the credential's salt and
// iteration count and compares it in constant time.
func (h *Hasher) Verify(password string, cred Credential) (bool, error) {
	if len(cred.Salt) != SaltSize {
		return false, fmt.Errorf("%w: got %d bytes", ErrInvalidSalt, len(cred.Salt))
	}
	iterations := cred.Iterations
	if iterations < 1 {
		iterations = h.iterations
	}

	candidate := derive(password, cred.Salt, iterations)
	return subtle.ConstantTimeCompare(candidate, cred.Hash) == 1, nil
}

// NeedsRehash reports whether cred was hashed with fewer iterations than h uses.
func (h *Hasher) NeedsRehash(cred Credential) bool {
	return cred.Iterations < h.iterations
}

func derive(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}
