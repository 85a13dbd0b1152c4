package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/store"
	"github.com/accountd/accountd/internal/testutils"
)

func openStore(t *testing.T) *store.Users {
	t.Helper()

	users, err := store.Open(t.TempDir(), 1<<20, testutils.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, users.Close()) })
	return users
}

func TestRetrieveNotFound(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	entry, err := users.Get("cn4e8jhs60b02")
	require.ErrorIs(t, err, store.ErrKeyNotFound)
	assert.Nil(t, entry)
}

func TestCanCreateAndRetrieveUsers(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	created, err := users.Create("ada@example.com", "Ada", "hash", store.RoleMember)
	require.NoError(t, err)
	require.NotEmpty(t, created.Value.ID)
	require.False(t, created.Value.UpdatedAt.IsZero())

	entry, err := users.Get(created.Value.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Value, entry.Value)

	version := entry.Value.ResourceVersion()
	assert.Equal(t, created.Value.ID, version.ID)
	assert.Equal(t, created.Value.UpdatedAt, version.LastModified)
}

func TestCreateRefusesDuplicateEmails(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	_, err := users.Create("ada@example.com", "Ada", "hash", store.RoleMember)
	require.NoError(t, err)

	_, err = users.Create("ADA@example.com", "Someone Else", "hash", store.RoleMember)
	require.ErrorIs(t, err, store.ErrEmailTaken)
}

func TestSaveBumpsTheResourceVersion(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	created, err := users.Create("ada@example.com", "Ada", "hash", store.RoleMember)
	require.NoError(t, err)
	before := created.Value.UpdatedAt

	entry, err := users.Get(created.Value.ID)
	require.NoError(t, err)
	entry.Value.Name = "Ada Lovelace"
	require.NoError(t, users.Save(entry))

	updated, err := users.Get(created.Value.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.Value.Name)
	assert.True(t, updated.Value.UpdatedAt.After(before) || updated.Value.UpdatedAt.Equal(before))
}

func TestRefusesToSaveIfEntryWasUpdated(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	created, err := users.Create("ada@example.com", "Ada", "hash", store.RoleMember)
	require.NoError(t, err)

	// Two readers pick up the same version
	first, err := users.Get(created.Value.ID)
	require.NoError(t, err)
	second, err := users.Get(created.Value.ID)
	require.NoError(t, err)

	second.Value.Name = "winner"
	require.NoError(t, users.Save(second))

	first.Value.Name = "loser"
	require.ErrorIs(t, users.Save(first), store.ErrConflict)
}

func TestRefusesToDeleteIfEntryWasUpdated(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	created, err := users.Create("ada@example.com", "Ada", "hash", store.RoleMember)
	require.NoError(t, err)

	stale, err := users.Get(created.Value.ID)
	require.NoError(t, err)

	fresh, err := users.Get(created.Value.ID)
	require.NoError(t, err)
	fresh.Value.Name = "renamed"
	require.NoError(t, users.Save(fresh))

	require.ErrorIs(t, users.Delete(stale), store.ErrConflict)
}

func TestDeleteRemovesTheUser(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	created, err := users.Create("ada@example.com", "Ada", "hash", store.RoleMember)
	require.NoError(t, err)

	entry, err := users.Get(created.Value.ID)
	require.NoError(t, err)
	require.NoError(t, users.Delete(entry))

	_, err = users.Get(created.Value.ID)
	require.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestListReturnsUsersInIdOrder(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := users.Create(email, "user", "hash", store.RoleMember)
		require.NoError(t, err)
	}

	listed, err := users.List()
	require.NoError(t, err)
	require.Len(t, listed, 3)

	for i := 1; i < len(listed); i++ {
		assert.Less(t, listed[i-1].ID, listed[i].ID)
	}
}

func TestSearchMatchesEmailAndNameCaseInsensitively(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	_, err := users.Create("ada@example.com", "Ada Lovelace", "hash", store.RoleMember)
	require.NoError(t, err)
	_, err = users.Create("grace@example.com", "Grace Hopper", "hash", store.RoleMember)
	require.NoError(t, err)

	byName, err := users.Search("LOVELACE")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "ada@example.com", byName[0].Email)

	byEmail, err := users.Search("grace@")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "Grace Hopper", byEmail[0].Name)

	none, err := users.Search("nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindByEmail(t *testing.T) {
	t.Parallel()

	users := openStore(t)

	created, err := users.Create("ada@example.com", "Ada", "hash", store.RoleMember)
	require.NoError(t, err)

	entry, err := users.FindByEmail("Ada@Example.com")
	require.NoError(t, err)
	assert.Equal(t, created.Value.ID, entry.Value.ID)

	_, err = users.FindByEmail("unknown@example.com")
	require.ErrorIs(t, err, store.ErrKeyNotFound)
}
