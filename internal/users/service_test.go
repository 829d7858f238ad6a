package users

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumenlearn/lumen/internal/credential"
	"github.com/lumenlearn/lumen/internal/shared"
)

type memoryUserRepo struct {
	mu     sync.Mutex
	users  map[uuid.UUID]User
	hashes map[uuid.UUID]string
	now    func() time.Time
}

func newMemoryUserRepo(now func() time.Time) *memoryUserRepo {
	return &memoryUserRepo{
		users:  make(map[uuid.UUID]User),
		hashes: make(map[uuid.UUID]string),
		now:    now,
	}
}

func (r *memoryUserRepo) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return shared.ErrDuplicate
		}
	}
	user.CreatedAt = r.now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	stored.Password = nil
	r.users[user.ID] = stored
	r.hashes[user.ID] = user.Password.Encoded()
	return nil
}

func (r *memoryUserRepo) load(id uuid.UUID) (*User, error) {
	stored, ok := r.users[id]
	if !ok || stored.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	cred, err := credential.FromEncoded(r.hashes[id])
	if err != nil {
		return nil, err
	}
	stored.Password = cred
	return &stored, nil
}

func (r *memoryUserRepo) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r *memoryUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, stored := range r.users {
		if stored.Email == email {
			return r.load(id)
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryUserRepo) List(ctx context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []User
	for id := range r.users {
		user, err := r.load(id)
		if err == nil {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, encoded string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.load(id); err != nil {
		return err
	}
	r.hashes[id] = encoded
	return nil
}

func (r *memoryUserRepo) UpdateStatus(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok || stored.DeletedAt != nil {
		return shared.ErrNotFound
	}
	stored.Status = user.Status
	stored.DeactivatedAt = user.DeactivatedAt
	stored.DeletionRequestedAt = user.DeletionRequestedAt
	stored.UpdatedAt = r.now()
	r.users[user.ID] = stored
	return nil
}

func (r *memoryUserRepo) SoftDeleteRequestedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, stored := range r.users {
		if stored.Status != StatusPendingDeletion || stored.DeletedAt != nil || stored.DeletionRequestedAt == nil {
			continue
		}
		if stored.DeletionRequestedAt.Before(cutoff) {
			now := r.now()
			stored.DeletedAt = &now
			r.users[id] = stored
			n++
		}
	}
	return n, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T) (*Service, *memoryUserRepo, *fakeClock, *credential.Pool) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryUserRepo(clock.Now)
	hasher, err := credential.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	pool := credential.NewPool(hasher, 2, nil)
	svc := NewService(repo, pool, nil)
	svc.now = clock.Now
	return svc, repo, clock, pool
}

func validInput() RegisterInput {
	return RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "  Ada@Example.COM ",
		Password:  "Tr0ub4dor&3",
	}
}

func TestRegisterHashesAndNormalises(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, pool := newTestService(t)

	user, err := svc.Register(ctx, validInput())
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.Equal(t, RoleStudent, user.Role)
	require.Equal(t, StatusActive, user.Status)
	require.False(t, user.CreatedAt.IsZero())

	stored := repo.hashes[user.ID]
	require.NotEmpty(t, stored)
	require.NotContains(t, stored, "Tr0ub4dor&3")

	loaded, err := svc.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.True(t, loaded.ValidatePassword(ctx, pool, "Tr0ub4dor&3"))
	require.False(t, loaded.ValidatePassword(ctx, pool, "tr0ub4dor&3"))
}

func TestRegisterInstructorRole(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	in := validInput()
	in.IsInstructor = true

	user, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, RoleInstructor, user.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	_, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	again := validInput()
	again.Email = "ADA@example.com"
	_, err = svc.Register(ctx, again)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestRegisterValidation(t *testing.T) {
	cases := map[string]func(*RegisterInput){
		"empty password":      func(in *RegisterInput) { in.Password = "" },
		"short password":      func(in *RegisterInput) { in.Password = "short" },
		"bad email":           func(in *RegisterInput) { in.Email = "not-an-email" },
		"missing first name":  func(in *RegisterInput) { in.FirstName = "   " },
		"bad image url":       func(in *RegisterInput) { in.ProfileImageURL = "::nope" },
		"password over bytes": func(in *RegisterInput) { in.Password = strings.Repeat("é", 40) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, repo, _, _ := newTestService(t)
			in := validInput()
			mutate(&in)
			_, err := svc.Register(context.Background(), in)
			require.ErrorIs(t, err, shared.ErrValidation)
			require.Empty(t, repo.users)
		})
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _, _, pool := newTestService(t)
	user, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong-password", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, user.ID, "Tr0ub4dor&3", "short")
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "Tr0ub4dor&3", "correct-horse"))

	loaded, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, loaded.ValidatePassword(ctx, pool, "correct-horse"))
	require.False(t, loaded.ValidatePassword(ctx, pool, "Tr0ub4dor&3"))
}

func TestResetPasswordReplacesHash(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, pool := newTestService(t)
	user, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, user.ID, "correct-horse"))
	first := repo.hashes[user.ID]
	require.NoError(t, svc.ResetPassword(ctx, user.ID, "correct-horse"))
	second := repo.hashes[user.ID]
	require.NotEqual(t, first, second)

	loaded, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, loaded.ValidatePassword(ctx, pool, "correct-horse"))

	require.ErrorIs(t, svc.ResetPassword(ctx, uuid.New(), "correct-horse"), shared.ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	user, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDeactivated, deactivated.Status)
	require.NotNil(t, deactivated.DeactivatedAt)
	require.False(t, deactivated.CanAuthenticate())

	_, err = svc.Deactivate(ctx, user.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	reactivated, err := svc.Reactivate(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, reactivated.Status)
	require.Nil(t, reactivated.DeactivatedAt)
	require.True(t, reactivated.CanAuthenticate())

	_, err = svc.Reactivate(ctx, user.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestFinalizeDeletionsRespectsGrace(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, _ := newTestService(t)
	user, err := svc.Register(ctx, validInput())
	require.NoError(t, err)

	pending, err := svc.RequestDeletion(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingDeletion, pending.Status)
	require.NotNil(t, pending.DeletionRequestedAt)

	_, err = svc.RequestDeletion(ctx, user.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	n, err := svc.FinalizeDeletions(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	clock.Advance(73 * time.Hour)
	n, err = svc.FinalizeDeletions(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = svc.Get(ctx, user.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = svc.FinalizeDeletions(ctx, -time.Hour)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUserJSONOmitsPassword(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	user, err := svc.Register(context.Background(), validInput())
	require.NoError(t, err)

	payload, err := json.Marshal(user)
	require.NoError(t, err)
	require.NotContains(t, string(payload), "password")
	require.NotContains(t, string(payload), user.Password.Encoded())
}

func TestUserWithoutCredential(t *testing.T) {
	_, _, _, pool := newTestService(t)
	var u User
	require.False(t, u.ValidatePassword(context.Background(), pool, "anything"))
	require.Equal(t, "", u.FullName())
	u.FirstName = "Ada"
	require.Equal(t, "Ada", u.FullName())
	u.LastName = "Lovelace"
	require.Equal(t, "Ada Lovelace", u.FullName())
}
