// Package credential stores a user's secret as a salted bcrypt hash and
// answers whether a candidate matches it. The plaintext is never retained
// and the hash never leaves the process through JSON or logs.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

const redacted = "[REDACTED]"

// Credential holds the encoded hash of one secret. The zero value has no
// secret set. It is safe for concurrent use: readers observe either the
// previous or the new hash, and the last Set wins.
type Credential struct {
	hash atomic.Pointer[string]
}

// FromEncoded rehydrates a credential loaded from storage. Values that are
// not bcrypt encodings are rejected so plaintext can never pose as a hash.
func FromEncoded(encoded string) (*Credential, error) {
	c := &Credential{}
	if encoded == "" {
		return c, nil
	}
	if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
		return nil, fmt.Errorf("%w: stored value is not a bcrypt hash", ErrInvalidInput)
	}
	c.hash.Store(&encoded)
	return c, nil
}

// Set hashes plaintext with a fresh salt and replaces the stored hash. On
// error the previous hash is kept.
func (c *Credential) Set(ctx context.Context, engine Engine, plaintext string) error {
	if plaintext == "" {
		return fmt.Errorf("%w: empty secret", ErrInvalidInput)
	}
	encoded, err := engine.Hash(ctx, []byte(plaintext))
	if err != nil {
		return err
	}
	c.hash.Store(&encoded)
	return nil
}

// Validate reports whether candidate matches the stored secret. An unset
// credential never matches.
func (c *Credential) Validate(ctx context.Context, engine Engine, candidate string) bool {
	encoded := c.Encoded()
	if encoded == "" {
		return false
	}
	return engine.Compare(ctx, encoded, []byte(candidate))
}

// IsSet reports whether a secret has been stored.
func (c *Credential) IsSet() bool {
	return c != nil && c.hash.Load() != nil
}

// Encoded returns the stored hash for persistence. It must not be shown
// to users or written to logs.
func (c *Credential) Encoded() string {
	if c == nil {
		return ""
	}
	if p := c.hash.Load(); p != nil {
		return *p
	}
	return ""
}

// NeedsRehash reports whether the stored hash was produced with a cost
// below cost.
func (c *Credential) NeedsRehash(cost int) bool {
	encoded := c.Encoded()
	if encoded == "" {
		return false
	}
	stored, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return true
	}
	return stored < cost
}

// MarshalJSON always emits null.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func (c *Credential) String() string {
	return redacted
}

// LogValue keeps the hash out of structured logs.
func (c *Credential) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
