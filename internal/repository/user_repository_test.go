package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_EnsureSystemUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	user, created, err := repo.EnsureSystemUser(4757633, "addons-task-user")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint(4757633), user.ID)
	assert.Equal(t, "addons-task-user", user.Username)

	again, created, err := repo.EnsureSystemUser(4757633, "addons-task-user")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	got, err := repo.GetByID(4757633)
	require.NoError(t, err)
	assert.Equal(t, "Add-ons Task User", got.Name)
}

func TestUserRepository_EnsureSystemUserUsernameTaken(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	createTestUser(t, db, 1)

	_, _, err := repo.EnsureSystemUser(2, "user1")
	assert.Error(t, err)

	_, err = repo.GetByID(2)
	assert.True(t, errors.Is(err, ErrNotFound))
}
