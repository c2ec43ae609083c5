package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-auth/aegis/internal/shared"
)

type tokenEntry struct {
	userID    int64
	expiresAt time.Time
}

type fakeUserStore struct {
	users     map[int64]User
	passwords map[int64]string
	revoked   map[int64]bool
	vtokens   map[string]tokenEntry
	rtokens   map[string]tokenEntry
	nextID    int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:     make(map[int64]User),
		passwords: make(map[int64]string),
		revoked:   make(map[int64]bool),
		vtokens:   make(map[string]tokenEntry),
		rtokens:   make(map[string]tokenEntry),
		nextID:    1,
	}
}

func (f *fakeUserStore) CreateUser(_ context.Context, provider, email, username, passwordHash string) (User, error) {
	for _, u := range f.users {
		if u.Provider == provider && u.Email == email {
			return User{}, shared.ErrDuplicate
		}
	}
	u := User{ID: f.nextID, Provider: provider, Email: email, Username: username, CreatedAt: time.Now()}
	f.users[u.ID] = u
	f.passwords[u.ID] = passwordHash
	f.nextID++
	return u, nil
}

func (f *fakeUserStore) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) ListUsersWithRoles(_ context.Context, provider string) ([]UserWithRoles, error) {
	var out []UserWithRoles
	for _, u := range f.users {
		if u.Provider == provider {
			out = append(out, UserWithRoles{User: u, Roles: []string{}})
		}
	}
	return out, nil
}

func (f *fakeUserStore) Suspend(_ context.Context, id int64, reason string) error {
	u, ok := f.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Suspended, u.SuspendedFor = true, reason
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) Unsuspend(_ context.Context, id int64) error {
	u, ok := f.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Suspended, u.SuspendedFor = false, ""
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) DeleteUser(_ context.Context, id int64) error {
	if _, ok := f.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserStore) RevokeCredentials(_ context.Context, userID int64) error {
	f.revoked[userID] = true
	return nil
}

func (f *fakeUserStore) MarkVerified(_ context.Context, id int64, at time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.VerifiedAt = &at
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) CreateVerificationToken(_ context.Context, userID int64, hash string, expiresAt time.Time) error {
	for h, entry := range f.vtokens {
		if entry.userID == userID {
			delete(f.vtokens, h)
		}
	}
	f.vtokens[hash] = tokenEntry{userID, expiresAt}
	return nil
}

func (f *fakeUserStore) ConsumeVerificationToken(_ context.Context, hash string) (int64, time.Time, error) {
	entry, ok := f.vtokens[hash]
	if !ok {
		return 0, time.Time{}, shared.ErrNotFound
	}
	delete(f.vtokens, hash)
	return entry.userID, entry.expiresAt, nil
}

func (f *fakeUserStore) FindUserIDByEmail(_ context.Context, provider, email string) (int64, error) {
	for _, u := range f.users {
		if u.Provider == provider && u.Email == email {
			return u.ID, nil
		}
	}
	return 0, shared.ErrNotFound
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	if _, ok := f.users[id]; !ok {
		return shared.ErrNotFound
	}
	f.passwords[id] = passwordHash
	return nil
}

func (f *fakeUserStore) CreatePasswordResetToken(_ context.Context, userID int64, hash string, expiresAt time.Time) error {
	for h, entry := range f.rtokens {
		if entry.userID == userID {
			delete(f.rtokens, h)
		}
	}
	f.rtokens[hash] = tokenEntry{userID, expiresAt}
	return nil
}

func (f *fakeUserStore) ConsumePasswordResetToken(_ context.Context, hash string) (int64, time.Time, error) {
	entry, ok := f.rtokens[hash]
	if !ok {
		return 0, time.Time{}, shared.ErrNotFound
	}
	delete(f.rtokens, hash)
	return entry.userID, entry.expiresAt, nil
}

func TestRegisterHashesPassword(t *testing.T) {
	store := newFakeUserStore()
	svc := NewService(store, nil)

	id, err := svc.Register(context.Background(), "users", "Kai@Example.com", "kai", "secret123")
	require.NoError(t, err)

	user := store.users[id]
	assert.Equal(t, "kai@example.com", user.Email, "email is normalized")
	hash := store.passwords[id]
	assert.NotEqual(t, "secret123", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret123")))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "users", "kai@example.com", "", "secret123")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "users", "kai@example.com", "", "secret123")
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestSuspendRevokesCredentials(t *testing.T) {
	store := newFakeUserStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	id, err := svc.Register(ctx, "users", "kai@example.com", "", "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Suspend(ctx, id, "abuse"))
	assert.True(t, store.users[id].Suspended)
	assert.Equal(t, "abuse", store.users[id].SuspendedFor)
	assert.True(t, store.revoked[id], "live credentials are revoked immediately")

	require.NoError(t, svc.Unsuspend(ctx, id))
	assert.False(t, store.users[id].Suspended)
}
