// ABOUTME: Tests for tree node CRUD, category assignment, and subtree deletes

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateNode_RootIsOwnCategory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "lucycore", "rewrite the context store")
	require.NoError(t, err)
	assert.Equal(t, root.ID, root.CategoryID)
	assert.Equal(t, rick.UserID, root.OwnerID)
	assert.EqualValues(t, 0, root.ParentID)
}

func TestStore_CreateNode_ChildInheritsCategory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "lucycore", "")
	require.NoError(t, err)
	child, err := store.CreateNode(ctx, rick, TreeProjects, root.ID, "storage layer", "")
	require.NoError(t, err)
	grandchild, err := store.CreateNode(ctx, rick, TreeProjects, child.ID, "schema", "")
	require.NoError(t, err)

	assert.Equal(t, root.ID, child.CategoryID)
	assert.Equal(t, root.ID, grandchild.CategoryID)
	assert.Equal(t, root.OwnerID, grandchild.OwnerID)
}

func TestStore_CreateNode_AgentScopedOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreePreferences, 0, "code style", "")
	require.NoError(t, err)
	assert.Equal(t, rick.AgentID, root.OwnerID)
}

func TestStore_CreateNode_MissingParent(t *testing.T) {
	store := setupTestStore(t)
	rick := makeIdentity(t, store, "rick", "lucy")

	_, err := store.CreateNode(context.Background(), rick, TreeProjects, 999, "orphan", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CreateNode_EmptyTitle(t *testing.T) {
	store := setupTestStore(t)
	rick := makeIdentity(t, store, "rick", "lucy")

	_, err := store.CreateNode(context.Background(), rick, TreeProjects, 0, "", "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStore_CreateNode_WrongKindParent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreeHints, 0, "git hints", "")
	require.NoError(t, err)

	// A parent id is only resolved within its own kind.
	_, err = store.CreateNode(ctx, rick, TreeProjects, root.ID, "child", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetNode_CrossUserHidden(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")
	morty := makeIdentity(t, store, "morty", "summer")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "secret plan", "")
	require.NoError(t, err)

	_, err = store.GetNode(ctx, morty, TreeProjects, root.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetNode_SameUserAgentReadsAgentTree(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")
	linus := makeIdentity(t, store, "rick", "linus")

	root, err := store.CreateNode(ctx, lucy, TreePreferences, 0, "tabs not spaces", "")
	require.NoError(t, err)

	// Readable by a sibling agent of the same user.
	got, err := store.GetNode(ctx, linus, TreePreferences, root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)

	// But not writable.
	title := "spaces not tabs"
	_, err = store.UpdateNode(ctx, linus, TreePreferences, root.ID, NodeUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStore_ListChildren_RootsAndChildren(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	rootA, err := store.CreateNode(ctx, rick, TreeProjects, 0, "project a", "")
	require.NoError(t, err)
	rootB, err := store.CreateNode(ctx, rick, TreeProjects, 0, "project b", "")
	require.NoError(t, err)
	child, err := store.CreateNode(ctx, rick, TreeProjects, rootA.ID, "section 1", "")
	require.NoError(t, err)

	roots, err := store.ListChildren(ctx, rick, TreeProjects, 0, 0)
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, rootA.ID, roots[0].ID)
	assert.Equal(t, rootB.ID, roots[1].ID)

	children, err := store.ListChildren(ctx, rick, TreeProjects, 0, rootA.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestStore_ListChildren_SiblingAgentTree(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	lucy := makeIdentity(t, store, "rick", "lucy")
	linus := makeIdentity(t, store, "rick", "linus")

	_, err := store.CreateNode(ctx, lucy, TreeAlwaysLoad, 0, "load me", "")
	require.NoError(t, err)

	roots, err := store.ListChildren(ctx, linus, TreeAlwaysLoad, lucy.AgentID, 0)
	require.NoError(t, err)
	assert.Len(t, roots, 1)

	// Own listing stays empty.
	own, err := store.ListChildren(ctx, linus, TreeAlwaysLoad, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, own)
}

func TestStore_UpdateNode(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "draft", "old")
	require.NoError(t, err)

	title := "final"
	updated, err := store.UpdateNode(ctx, rick, TreeProjects, root.ID, NodeUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, "old", updated.Description)

	got, err := store.GetNode(ctx, rick, TreeProjects, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, root.CategoryID, got.CategoryID)
}

func TestStore_UpdateNode_NoFields(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "draft", "")
	require.NoError(t, err)

	_, err = store.UpdateNode(ctx, rick, TreeProjects, root.ID, NodeUpdate{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStore_DeleteNode_CascadesSubtree(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "project", "")
	require.NoError(t, err)
	child, err := store.CreateNode(ctx, rick, TreeProjects, root.ID, "section", "")
	require.NoError(t, err)
	_, err = store.CreateNode(ctx, rick, TreeProjects, child.ID, "subsection", "")
	require.NoError(t, err)

	deleted, err := store.DeleteNode(ctx, rick, TreeProjects, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	_, err = store.GetNode(ctx, rick, TreeProjects, child.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteNode_MidTreeLeavesSiblings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "project", "")
	require.NoError(t, err)
	childA, err := store.CreateNode(ctx, rick, TreeProjects, root.ID, "keep", "")
	require.NoError(t, err)
	childB, err := store.CreateNode(ctx, rick, TreeProjects, root.ID, "drop", "")
	require.NoError(t, err)

	deleted, err := store.DeleteNode(ctx, rick, TreeProjects, childB.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = store.GetNode(ctx, rick, TreeProjects, childA.ID)
	assert.NoError(t, err)
}

func TestStore_DeleteNode_RevokesShares(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	rick := makeIdentity(t, store, "rick", "lucy")
	morty := makeIdentity(t, store, "morty", "summer")

	root, err := store.CreateNode(ctx, rick, TreeProjects, 0, "shared project", "")
	require.NoError(t, err)
	_, err = store.GrantShare(ctx, rick, morty.UserID, ObjectProject, root.ID, 2)
	require.NoError(t, err)

	_, err = store.DeleteNode(ctx, rick, TreeProjects, root.ID)
	require.NoError(t, err)

	inbound, err := store.ListInboundShares(ctx, morty)
	require.NoError(t, err)
	assert.Empty(t, inbound)
}
