package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/lumenlearn/lumen/internal/credential"
	"github.com/lumenlearn/lumen/internal/shared"
)

// RegisterInput carries the fields accepted when creating an account.
type RegisterInput struct {
	FirstName       string `validate:"required,max=100"`
	LastName        string `validate:"required,max=100"`
	Email           string `validate:"required,email,max=320"`
	Password        string `validate:"required,min=8,max=72"`
	IsInstructor    bool
	Bio             string `validate:"max=2000"`
	ProfileImageURL string `validate:"omitempty,url"`
}

const passwordRule = "required,min=8,max=72"

// Service handles user business logic.
type Service struct {
	repo     Repository
	engine   credential.Engine
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, engine credential.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		engine:   engine,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEmail trims and case-folds an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// Register validates input, hashes the password and stores a new account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	user := &User{
		ID:              uuid.New(),
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		IsInstructor:    in.IsInstructor,
		Bio:             in.Bio,
		Role:            RoleStudent,
		ProfileImageURL: in.ProfileImageURL,
		Status:          StatusActive,
	}
	if in.IsInstructor {
		user.Role = RoleInstructor
	}
	if err := user.SetPassword(ctx, s.engine, in.Password); err != nil {
		return nil, passwordError(err)
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", slog.String("user_id", user.ID.String()), slog.String("role", string(user.Role)))
	return user, nil
}

// Get returns a live account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns a live account by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// List returns all live accounts.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !user.ValidatePassword(ctx, s.engine, current) {
		return shared.ErrInvalidCredentials
	}
	return s.replacePassword(ctx, user, next)
}

// ResetPassword replaces the password without the current one.
func (s *Service) ResetPassword(ctx context.Context, id uuid.UUID, next string) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.replacePassword(ctx, user, next)
}

// UpgradeHash rehashes a password that was just verified, typically after
// the configured cost was raised. Policy checks are skipped because the
// secret is already in use.
func (s *Service) UpgradeHash(ctx context.Context, user *User, plaintext string) error {
	if err := user.SetPassword(ctx, s.engine, plaintext); err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, user.ID, user.Password.Encoded())
}

func (s *Service) replacePassword(ctx context.Context, user *User, next string) error {
	if err := s.validate.Var(next, passwordRule); err != nil {
		return validationError(err)
	}
	if err := user.SetPassword(ctx, s.engine, next); err != nil {
		return passwordError(err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, user.Password.Encoded()); err != nil {
		return err
	}
	s.logger.Info("password replaced", slog.String("user_id", user.ID.String()))
	return nil
}

// Deactivate suspends an active account.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.transition(ctx, id, func(u *User, now time.Time) error {
		if u.Status != StatusActive {
			return fmt.Errorf("%w: %s to %s", shared.ErrInvalidTransition, u.Status, StatusDeactivated)
		}
		u.Status = StatusDeactivated
		u.DeactivatedAt = &now
		return nil
	})
}

// Reactivate restores a deactivated account or cancels a pending deletion.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.transition(ctx, id, func(u *User, now time.Time) error {
		if u.Status == StatusActive {
			return fmt.Errorf("%w: already %s", shared.ErrInvalidTransition, StatusActive)
		}
		u.Status = StatusActive
		u.DeactivatedAt = nil
		u.DeletionRequestedAt = nil
		return nil
	})
}

// RequestDeletion schedules an account for deletion after the grace period.
func (s *Service) RequestDeletion(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.transition(ctx, id, func(u *User, now time.Time) error {
		if u.Status == StatusPendingDeletion {
			return fmt.Errorf("%w: already %s", shared.ErrInvalidTransition, StatusPendingDeletion)
		}
		u.Status = StatusPendingDeletion
		u.DeletionRequestedAt = &now
		return nil
	})
}

// FinalizeDeletions soft-deletes accounts whose deletion request is older
// than grace and returns how many were removed.
func (s *Service) FinalizeDeletions(ctx context.Context, grace time.Duration) (int64, error) {
	if grace < 0 {
		return 0, fmt.Errorf("%w: negative grace period", shared.ErrValidation)
	}
	cutoff := s.now().Add(-grace)
	n, err := s.repo.SoftDeleteRequestedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("finalized account deletions", slog.Int64("count", n), slog.Time("cutoff", cutoff))
	}
	return n, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, apply func(*User, time.Time) error) (*User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := user.Status
	if err := apply(user, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("account status changed",
		slog.String("user_id", user.ID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(user.Status)),
	)
	return user, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			name := fe.Field()
			if name == "" {
				name = "password"
			}
			fields = append(fields, name+":"+fe.Tag())
		}
		return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", shared.ErrValidation, err)
}

func passwordError(err error) error {
	if errors.Is(err, credential.ErrInvalidInput) {
		return fmt.Errorf("%w: password: %v", shared.ErrValidation, err)
	}
	return err
}
