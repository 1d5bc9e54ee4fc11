// ABOUTME: Tests for encrypted secret storage and its fail-closed retrieval

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowcapsystems/lucycore/internal/vault"
)

func TestStore_Secret_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")

	require.NoError(t, store.PutSecret(ctx, lucy, "github_token", "ghp_xxx"))

	value, err := store.GetSecret(ctx, lucy, "github_token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_xxx", value)
}

func TestStore_Secret_ValueStoredEncrypted(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")

	require.NoError(t, store.PutSecret(ctx, lucy, "github_token", "ghp_xxx"))

	var blob []byte
	err := store.db.QueryRowContext(ctx,
		`SELECT encrypted_value FROM secrets WHERE user_id = ? AND key = ?`,
		lucy.UserID, "github_token",
	).Scan(&blob)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "ghp_xxx")
}

func TestStore_PutSecret_Replaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")

	require.NoError(t, store.PutSecret(ctx, lucy, "token", "old"))
	require.NoError(t, store.PutSecret(ctx, lucy, "token", "new"))

	value, err := store.GetSecret(ctx, lucy, "token")
	require.NoError(t, err)
	assert.Equal(t, "new", value)

	infos, err := store.ListSecretKeys(ctx, lucy)
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestStore_Secret_UserScoped(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")
	linus := makeIdentity(t, store, "rick", "linus")
	summer := makeIdentity(t, store, "morty", "summer")

	require.NoError(t, store.PutSecret(ctx, lucy, "token", "ghp_xxx"))

	// Any agent of the owning user can read.
	value, err := store.GetSecret(ctx, linus, "token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_xxx", value)

	// Another user's agent cannot.
	_, err = store.GetSecret(ctx, summer, "token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetSecret_TamperedValue(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")

	require.NoError(t, store.PutSecret(ctx, lucy, "token", "ghp_xxx"))

	// Corrupt the stored ciphertext directly.
	_, err := store.db.ExecContext(ctx,
		`UPDATE secrets SET encrypted_value = X'00010203' WHERE user_id = ? AND key = ?`,
		lucy.UserID, "token")
	require.NoError(t, err)

	_, err = store.GetSecret(ctx, lucy, "token")
	assert.ErrorIs(t, err, vault.ErrDecrypt)
}

func TestStore_DeleteSecret_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")

	require.NoError(t, store.PutSecret(ctx, lucy, "token", "ghp_xxx"))
	require.NoError(t, store.DeleteSecret(ctx, lucy, "token"))

	_, err := store.GetSecret(ctx, lucy, "token")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.DeleteSecret(ctx, lucy, "token"))
	assert.NoError(t, store.DeleteSecret(ctx, lucy, "never-existed"))
}

func TestStore_ListSecretKeys(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")

	require.NoError(t, store.PutSecret(ctx, lucy, "zeta", "1"))
	require.NoError(t, store.PutSecret(ctx, lucy, "alpha", "2"))

	infos, err := store.ListSecretKeys(ctx, lucy)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Key)
	assert.Equal(t, "zeta", infos[1].Key)
}
