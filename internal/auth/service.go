package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lumenlearn/lumen/internal/credential"
	"github.com/lumenlearn/lumen/internal/shared"
	"github.com/lumenlearn/lumen/internal/users"
)

// UserStore is the slice of the users service that authentication needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	UpgradeHash(ctx context.Context, user *users.User, plaintext string) error
}

// Options tunes optional behaviour of Service.
type Options struct {
	// Throttle limits failed attempts; nil disables limiting.
	Throttle *Throttle
	// RehashCost triggers a transparent rehash when a stored hash was made
	// with a lower cost. Zero disables it.
	RehashCost int
	Logger     *slog.Logger
}

// Service verifies email/password pairs.
type Service struct {
	users      UserStore
	engine     credential.Engine
	throttle   *Throttle
	rehashCost int
	logger     *slog.Logger
	decoy      *credential.Credential
}

// NewService constructs a new Service. It hashes a random decoy secret so
// lookups for unknown accounts spend the same work as real comparisons.
func NewService(ctx context.Context, store UserStore, engine credential.Engine, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("auth: decoy secret: %w", err)
	}
	decoy := &credential.Credential{}
	if err := decoy.Set(ctx, engine, hex.EncodeToString(secret)); err != nil {
		return nil, fmt.Errorf("auth: decoy hash: %w", err)
	}
	return &Service{
		users:      store,
		engine:     engine,
		throttle:   opts.Throttle,
		rehashCost: opts.RehashCost,
		logger:     logger,
		decoy:      decoy,
	}, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	key := users.NormalizeEmail(email)

	blocked, err := s.throttle.Blocked(ctx, key)
	if err != nil {
		s.logger.Warn("login throttle unavailable", slog.Any("error", err))
	}
	if blocked {
		return nil, shared.ErrTooManyAttempts
	}

	user, err := s.users.GetByEmail(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		s.decoy.Validate(ctx, s.engine, password)
		s.fail(ctx, key)
		return nil, shared.ErrInvalidCredentials
	}

	// Inactive accounts count as failures even with the right password so
	// the response matches a wrong password.
	if !user.ValidatePassword(ctx, s.engine, password) || !user.CanAuthenticate() {
		s.fail(ctx, key)
		return nil, shared.ErrInvalidCredentials
	}

	if err := s.throttle.Reset(ctx, key); err != nil {
		s.logger.Warn("login throttle reset", slog.Any("error", err))
	}

	if s.rehashCost > 0 && user.Password.NeedsRehash(s.rehashCost) {
		if err := s.users.UpgradeHash(ctx, user, password); err != nil {
			s.logger.Warn("password rehash", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		}
	}
	return user, nil
}

func (s *Service) fail(ctx context.Context, key string) {
	n, err := s.throttle.Fail(ctx, key)
	if err != nil {
		s.logger.Warn("login throttle record", slog.Any("error", err))
		return
	}
	if s.throttle != nil && n == s.throttle.limit {
		s.logger.Warn("login attempts exhausted", slog.Duration("window", s.throttle.window))
	}
}
