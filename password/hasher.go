package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Hasher hashes and verifies passwords.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Verify returns (false, nil) on mismatch; an error only when the
//   stored hash is malformed, which callers must treat as a failed check.
type Hasher interface {
	// Hash returns an encoded hash with a fresh random salt.
	Hash(password string) (string, error)

	// Verify reports whether password matches the stored hash.
	Verify(password, stored string) (bool, error)

	// NeedsRehash reports whether stored was produced with different
	// parameters than the hasher currently uses.
	NeedsRehash(stored string) bool
}

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher. A cost of zero selects
// bcrypt.DefaultCost; other values are clamped to [bcrypt.MinCost, bcrypt.MaxCost].
func NewBcryptHasher(cost int) *BcryptHasher {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the work factor new hashes are produced with.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash hashes the password. The result looks like "$2a$<cost>$<salt><digest>".
func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(hash), nil
}

// Verify recomputes the digest with the salt and cost embedded in stored and
// compares in constant time.
func (h *BcryptHasher) Verify(password, stored string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword),
		errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// NeedsRehash reports whether stored is unreadable or uses another cost.
func (h *BcryptHasher) NeedsRehash(stored string) bool {
	cost, err := bcrypt.Cost([]byte(stored))
	if err != nil {
		return true
	}
	return cost != h.cost
}

// Ensure BcryptHasher implements Hasher
var _ Hasher = (*BcryptHasher)(nil)
