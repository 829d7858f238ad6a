package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenlearn/lumen/internal/credential"
	"github.com/lumenlearn/lumen/internal/platform/db"
	"github.com/lumenlearn/lumen/internal/shared"
)

// Repository defines persistence operations for user accounts. Soft-deleted
// accounts are invisible to every read.
type Repository interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, encoded string) error
	UpdateStatus(ctx context.Context, user *User) error
	SoftDeleteRequestedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const uniqueViolation = "23505"

const userColumns = `id, first_name, last_name, email, password_hash, is_instructor, bio, role,
	profile_image_url, status, is_email_verified, profile_id, settings_id, wallet_id,
	created_at, updated_at, deactivated_at, deletion_requested_at, deleted_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts the user and stamps its timestamps.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	now := r.now()
	_, err := r.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15, NULL, NULL, NULL)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.Password.Encoded(), user.IsInstructor,
		nullable(user.Bio), user.Role, nullable(user.ProfileImageURL), user.Status, user.IsEmailVerified,
		user.ProfileID, user.SettingsID, user.WalletID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.ErrDuplicate
		}
		return fmt.Errorf("users: insert: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// Get fetches a user by id.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by normalised email.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
	return scanUser(row)
}

// List returns all live users ordered by creation.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return users, nil
}

// UpdatePassword replaces the stored hash while holding the row lock.
func (r *PGRepository) UpdatePassword(ctx context.Context, id uuid.UUID, encoded string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("users: lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, encoded, r.now()); err != nil {
			return fmt.Errorf("users: update password: %w", err)
		}
		return nil
	})
}

// UpdateStatus writes the status fields of user.
func (r *PGRepository) UpdateStatus(ctx context.Context, user *User) error {
	now := r.now()
	tag, err := r.pool.Exec(ctx, `UPDATE users
		SET status = $2, deactivated_at = $3, deletion_requested_at = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL`,
		user.ID, user.Status, user.DeactivatedAt, user.DeletionRequestedAt, now)
	if err != nil {
		return fmt.Errorf("users: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	user.UpdatedAt = now
	return nil
}

// SoftDeleteRequestedBefore marks accounts whose deletion was requested
// before cutoff as deleted.
func (r *PGRepository) SoftDeleteRequestedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	now := r.now()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET deleted_at = $2, updated_at = $2
		WHERE status = $3 AND deletion_requested_at < $1 AND deleted_at IS NULL`,
		cutoff, now, StatusPendingDeletion)
	if err != nil {
		return 0, fmt.Errorf("users: soft delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		user            User
		passwordHash    string
		bio, profileURL *string
	)
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &passwordHash, &user.IsInstructor,
		&bio, &user.Role, &profileURL, &user.Status, &user.IsEmailVerified, &user.ProfileID, &user.SettingsID,
		&user.WalletID, &user.CreatedAt, &user.UpdatedAt, &user.DeactivatedAt, &user.DeletionRequestedAt, &user.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	cred, err := credential.FromEncoded(passwordHash)
	if err != nil {
		return nil, fmt.Errorf("users: load credential for %s: %w", user.ID, err)
	}
	user.Password = cred
	if bio != nil {
		user.Bio = *bio
	}
	if profileURL != nil {
		user.ProfileImageURL = *profileURL
	}
	return &user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Repository = (*PGRepository)(nil)
