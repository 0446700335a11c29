// ABOUTME: Tests for role grant store operations
// ABOUTME: Covers Add, Remove, Has across global and project scopes

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleStore_Add(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddRole(ctx, "alice", "netadmin", ScopeGlobal))

	has, err := store.HasRole(ctx, "alice", "netadmin", ScopeGlobal)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRoleStore_Add_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddRole(ctx, "alice", "netadmin", ScopeGlobal))
	require.NoError(t, store.AddRole(ctx, "alice", "netadmin", ScopeGlobal))

	has, err := store.HasRole(ctx, "alice", "netadmin", ScopeGlobal)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRoleStore_ScopesAreIndependent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddRole(ctx, "alice", "netadmin", "apollo"))

	has, err := store.HasRole(ctx, "alice", "netadmin", ScopeGlobal)
	require.NoError(t, err)
	assert.False(t, has, "project-scoped grant must not imply a global grant")

	has, err = store.HasRole(ctx, "alice", "netadmin", "apollo")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasRole(ctx, "alice", "netadmin", "zeus")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRoleStore_Remove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddRole(ctx, "alice", "netadmin", ScopeGlobal))
	require.NoError(t, store.RemoveRole(ctx, "alice", "netadmin", ScopeGlobal))

	has, err := store.HasRole(ctx, "alice", "netadmin", ScopeGlobal)
	require.NoError(t, err)
	assert.False(t, has)

	// Removing again is a silent no-op.
	require.NoError(t, store.RemoveRole(ctx, "alice", "netadmin", ScopeGlobal))
}

func TestRoleStore_Has_UnknownUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	has, err := store.HasRole(ctx, "ghost", "netadmin", ScopeGlobal)
	require.NoError(t, err)
	assert.False(t, has)
}
