// Package password provides bcrypt password hashing and verification.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest bcrypt cost accepted for password storage
const MinCost = 10

// Hasher hashes and verifies passwords with bcrypt
type Hasher struct {
	cost int
}

// NewHasher creates a new hasher. Costs below MinCost are raised to MinCost.
func NewHasher(cost int) *Hasher {
	if cost < MinCost {
		cost = MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of a plaintext password
func (h *Hasher) Hash(password string) (string, error) {
	// bcrypt silently truncates input past 72 bytes
	if len(password) > 72 {
		return "", fmt.Errorf("password exceeds 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether the plaintext password matches the stored hash.
// Returns false for malformed hashes instead of an error so a corrupt
// record behaves like a wrong password.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Cost returns the configured bcrypt cost
func (h *Hasher) Cost() int {
	return h.cost
}
