package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPlaintextBytes is the longest secret bcrypt accepts without truncation.
const MaxPlaintextBytes = 72

// Hasher is a salted, adaptive one-way hash whose encoding carries its own
// salt and cost.
type Hasher interface {
	Hash(plaintext []byte) (string, error)
	Compare(encoded string, candidate []byte) bool
	Cost(encoded string) (int, error)
}

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher validates cost and returns a hasher using it.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("credential: bcrypt cost %d outside [%d,%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Hash draws a fresh salt and hashes plaintext with it.
func (h *BcryptHasher) Hash(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("%w: empty secret", ErrInvalidInput)
	}
	if len(plaintext) > MaxPlaintextBytes {
		return "", fmt.Errorf("%w: secret exceeds %d bytes", ErrInvalidInput, MaxPlaintextBytes)
	}
	out, err := bcrypt.GenerateFromPassword(plaintext, h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return string(out), nil
}

// Compare reports whether candidate hashes to encoded under encoded's salt.
func (h *BcryptHasher) Compare(encoded string, candidate []byte) bool {
	if encoded == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(encoded), candidate) == nil
}

// Cost returns the work factor recorded in encoded.
func (h *BcryptHasher) Cost(encoded string) (int, error) {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return cost, nil
}

// ConfiguredCost returns the cost new hashes are produced with.
func (h *BcryptHasher) ConfiguredCost() int {
	return h.cost
}

var _ Hasher = (*BcryptHasher)(nil)
