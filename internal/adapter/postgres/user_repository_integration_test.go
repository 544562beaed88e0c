package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskman/taskman/internal/domain"
)

func createTestUser(t *testing.T, repo *UserRepo, username string) *domain.User {
	t.Helper()
	u, err := repo.Upsert(context.Background(), username, username+"@example.com")
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	return u
}

func TestUserRepo_GetByID(t *testing.T) {
	repo := NewUserRepo(setupTestDB(t))
	created := createTestUser(t, repo, "alice")

	got, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	repo := NewUserRepo(setupTestDB(t))

	got, err := repo.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Nil(t, got)
}

func TestUserRepo_UpsertKeepsID(t *testing.T) {
	repo := NewUserRepo(setupTestDB(t))
	ctx := context.Background()

	first := createTestUser(t, repo, "bob")
	second, err := repo.Upsert(ctx, "bob", "new@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new@example.com", second.Email)

	byName, err := repo.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byName.ID)
}

func TestUserRepo_GetByUsername_NotFound(t *testing.T) {
	repo := NewUserRepo(setupTestDB(t))

	_, err := repo.GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
