// ABOUTME: Shared test fixtures for the store package
// ABOUTME: Creates throwaway stores with random vault keys and provisioned principals

package store

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snowcapsystems/lucycore/internal/vault"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	key := make([]byte, vault.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := vault.New(key)
	require.NoError(t, err)

	store, err := NewSQLiteStore(dbPath, cipher)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// makeIdentity provisions a user with one agent and returns the
// resolved identity.
func makeIdentity(t *testing.T, s *SQLiteStore, userName, agentName string) Identity {
	t.Helper()
	ctx := context.Background()

	user, err := s.GetUserByName(ctx, userName)
	if err != nil {
		user, err = s.CreateUser(ctx, userName)
		require.NoError(t, err)
	}

	agent, err := s.CreateAgent(ctx, user.ID, agentName)
	require.NoError(t, err)

	return Identity{
		UserID:    user.ID,
		UserName:  user.Name,
		AgentID:   agent.ID,
		AgentName: agent.Name,
	}
}
