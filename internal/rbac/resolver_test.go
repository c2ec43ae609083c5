package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	roleSlugs   map[int64][]string
	privSlugs   map[int64][]string
	privByRole  map[string][]string
	roleQueries int
	privQueries int
}

func (f *fakeStore) RoleSlugsOfUser(_ context.Context, userID int64) ([]string, error) {
	f.roleQueries++
	return f.roleSlugs[userID], nil
}

func (f *fakeStore) PrivilegeSlugsOfUser(_ context.Context, userID int64) ([]string, error) {
	f.privQueries++
	return f.privSlugs[userID], nil
}

func (f *fakeStore) PrivilegeSlugsOfRoleSlugs(_ context.Context, roleSlugs []string) ([]string, error) {
	var out []string
	for _, slug := range roleSlugs {
		out = append(out, f.privByRole[slug]...)
	}
	return out, nil
}

type plainSubject struct{ id int64 }

func (s plainSubject) SubjectID() int64 { return s.id }

type eagerSubject struct {
	id    int64
	roles []string
}

func (s eagerSubject) SubjectID() int64                 { return s.id }
func (s eagerSubject) HeldRoleSlugs() ([]string, bool)  { return s.roles, s.roles != nil }

func TestRoleSlugsFlattensAndDeduplicates(t *testing.T) {
	store := &fakeStore{roleSlugs: map[int64][]string{
		7: {" admin", "", "admin", "editor"},
	}}
	res := NewResolver(store, nil)

	slugs, err := res.RoleSlugs(context.Background(), plainSubject{id: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "editor"}, slugs)
}

func TestRoleSlugsEagerPathSkipsStore(t *testing.T) {
	store := &fakeStore{}
	res := NewResolver(store, nil)

	slugs, err := res.RoleSlugs(context.Background(), eagerSubject{id: 7, roles: []string{"editor", "editor", " admin "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"editor", "admin"}, slugs)
	assert.Zero(t, store.roleQueries)
}

func TestPrivilegeSlugsEagerPathResolvesThroughRoles(t *testing.T) {
	store := &fakeStore{privByRole: map[string][]string{
		"editor": {"posts.edit", "posts.view"},
	}}
	res := NewResolver(store, nil)

	slugs, err := res.PrivilegeSlugs(context.Background(), eagerSubject{id: 7, roles: []string{"editor"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"posts.edit", "posts.view"}, slugs)
	assert.Zero(t, store.privQueries)
}

func TestWildcardSatisfiesEveryCheck(t *testing.T) {
	granted := []string{Wildcard}
	assert.True(t, ContainsAll(granted, []string{"anything", "at.all"}))
	assert.True(t, ContainsAny(granted, []string{"whatever"}))
}

func TestContainment(t *testing.T) {
	granted := []string{"admin", "editor"}

	assert.True(t, ContainsAll(granted, []string{"admin"}))
	assert.False(t, ContainsAll(granted, []string{"admin", "owner"}))
	assert.True(t, ContainsAny(granted, []string{"owner", "editor"}))
	assert.False(t, ContainsAny(granted, []string{"owner"}))

	// empty required set always allows
	assert.True(t, ContainsAll(granted, nil))
	assert.True(t, ContainsAny(nil, nil))
}

func TestHasAllRoles(t *testing.T) {
	store := &fakeStore{roleSlugs: map[int64][]string{7: {"admin"}}}
	res := NewResolver(store, nil)

	ok, err := res.HasAllRoles(context.Background(), plainSubject{id: 7}, []string{"admin"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = res.HasAllRoles(context.Background(), plainSubject{id: 7}, []string{"owner"})
	require.NoError(t, err)
	assert.False(t, ok)
}
