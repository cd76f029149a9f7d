package database

import (
	"context"
	"path/filepath"
	"testing"

	"voxchat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDatabase(t *testing.T) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestDatabase_SaveAndLoadCredentials(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	creds := &models.Credentials{
		Token:    "bearer-token-123",
		UserID:   42,
		Username: "alice",
	}

	require.NoError(t, db.SaveCredentials(ctx, creds))

	loaded, err := db.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bearer-token-123", loaded.Token)
	assert.Equal(t, int64(42), loaded.UserID)
	assert.Equal(t, "alice", loaded.Username)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestDatabase_SaveOverwritesPrevious(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveCredentials(ctx, &models.Credentials{
		Token: "old-token", UserID: 1, Username: "alice",
	}))
	require.NoError(t, db.SaveCredentials(ctx, &models.Credentials{
		Token: "new-token", UserID: 2, Username: "bob",
	}))

	loaded, err := db.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-token", loaded.Token)
	assert.Equal(t, int64(2), loaded.UserID)
	assert.Equal(t, "bob", loaded.Username)
}

func TestDatabase_LoadCredentials_Empty(t *testing.T) {
	db := setupTestDatabase(t)

	_, err := db.LoadCredentials(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestDatabase_ClearCredentials(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveCredentials(ctx, &models.Credentials{
		Token: "token", UserID: 1, Username: "alice",
	}))
	require.NoError(t, db.ClearCredentials(ctx))

	_, err := db.LoadCredentials(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestDatabase_ClearCredentials_Empty(t *testing.T) {
	db := setupTestDatabase(t)
	assert.NoError(t, db.ClearCredentials(context.Background()))
}

func TestDatabase_EncryptedTokenAtRest(t *testing.T) {
	t.Setenv("VOXCHAT_SECRET", "a-very-long-test-secret-for-encryption")

	db := setupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveCredentials(ctx, &models.Credentials{
		Token: "secret-token", UserID: 7, Username: "carol",
	}))

	var stored string
	row := db.db.QueryRowContext(ctx, `SELECT token FROM credentials WHERE id = 1`)
	require.NoError(t, row.Scan(&stored))
	assert.NotEqual(t, "secret-token", stored)

	loaded, err := db.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", loaded.Token)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	t.Setenv("VOXCHAT_SECRET", "another-sufficiently-long-secret")

	enc, err := newEncryptor()
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("hello world")
	require.NoError(t, err)
	assert.NotEqual(t, "hello world", ciphertext)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello world", plaintext)
}

func TestEncryptor_DisabledPassthrough(t *testing.T) {
	t.Setenv("VOXCHAT_SECRET", "")

	enc, err := newEncryptor()
	require.NoError(t, err)

	out, err := enc.Encrypt("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestEncryptor_ShortSecret(t *testing.T) {
	t.Setenv("VOXCHAT_SECRET", "short")

	_, err := newEncryptor()
	assert.Error(t, err)
}

func TestEncryptor_DecryptInvalidData(t *testing.T) {
	t.Setenv("VOXCHAT_SECRET", "a-very-long-test-secret-for-encryption")

	enc, err := newEncryptor()
	require.NoError(t, err)

	_, err = enc.Decrypt("not-valid-base64!!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("YWJj")
	assert.Error(t, err)
}
