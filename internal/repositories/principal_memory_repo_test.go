package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPrincipalRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrincipalRepository()

	created, err := repo.Create(ctx, &models.Principal{
		Identifier:   "  Alice ",
		PasswordHash: "hash",
		Type:         models.PrincipalTypeIndividual,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.Identifier)
	assert.False(t, created.TOTPEnabled)
	assert.Nil(t, created.TOTPSecret)

	found, err := repo.FindByIdentifier(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Identifier)
}

func TestMemoryPrincipalRepository_DuplicateIdentifier(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrincipalRepository()

	_, err := repo.Create(ctx, &models.Principal{Identifier: "bob"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.Principal{Identifier: "BOB"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMemoryPrincipalRepository_Put(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrincipalRepository()
	created, err := repo.Create(ctx, &models.Principal{Identifier: "carol"})
	require.NoError(t, err)

	created.EnableTOTP("nonce:ciphertext", time.Now())
	created.Identifier = "mallory"
	_, err = repo.Put(ctx, created)
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.TOTPEnabled)
	require.NotNil(t, stored.TOTPSecret)
	assert.Equal(t, "nonce:ciphertext", *stored.TOTPSecret)
	assert.Equal(t, "carol", stored.Identifier)

	_, err = repo.Put(ctx, &models.Principal{ID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryPrincipalRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPrincipalRepository()
	created, err := repo.Create(ctx, &models.Principal{Identifier: "dave"})
	require.NoError(t, err)

	created.TOTPEnabled = true

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.TOTPEnabled)
}
