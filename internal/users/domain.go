package users

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlearn/lumen/internal/credential"
)

// Role is the account's permission tier.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Status is the account lifecycle state.
type Status string

const (
	StatusActive          Status = "active"
	StatusDeactivated     Status = "deactivated"
	StatusPendingDeletion Status = "pending_deletion"
)

// User represents a learner or instructor account. Timestamps and the
// soft-delete marker are stamped by the repository.
type User struct {
	ID              uuid.UUID              `json:"id"`
	FirstName       string                 `json:"first_name"`
	LastName        string                 `json:"last_name"`
	Email           string                 `json:"email"`
	Password        *credential.Credential `json:"-"`
	IsInstructor    bool                   `json:"is_instructor"`
	Bio             string                 `json:"bio,omitempty"`
	Role            Role                   `json:"role"`
	ProfileImageURL string                 `json:"profile_image_url,omitempty"`
	Status          Status                 `json:"status"`
	IsEmailVerified bool                   `json:"is_email_verified"`

	// Associated records are resolved by their own repositories.
	ProfileID  *uuid.UUID `json:"profile_id,omitempty"`
	SettingsID *uuid.UUID `json:"settings_id,omitempty"`
	WalletID   *uuid.UUID `json:"wallet_id,omitempty"`

	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeactivatedAt       *time.Time `json:"deactivated_at,omitempty"`
	DeletionRequestedAt *time.Time `json:"deletion_requested_at,omitempty"`
	DeletedAt           *time.Time `json:"-"`
}

// SetPassword hashes plaintext with a fresh salt and replaces the stored
// credential.
func (u *User) SetPassword(ctx context.Context, engine credential.Engine, plaintext string) error {
	if u.Password == nil {
		u.Password = &credential.Credential{}
	}
	return u.Password.Set(ctx, engine, plaintext)
}

// ValidatePassword reports whether candidate matches the stored credential.
func (u *User) ValidatePassword(ctx context.Context, engine credential.Engine, candidate string) bool {
	if u.Password == nil {
		return false
	}
	return u.Password.Validate(ctx, engine, candidate)
}

// CanAuthenticate reports whether the account may sign in.
func (u *User) CanAuthenticate() bool {
	return u.Status == StatusActive && u.DeletedAt == nil
}

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
