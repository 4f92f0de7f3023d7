package membership

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AddMembership(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.AddMembership(ctx, "g1", "carol"))
	require.NoError(t, m.AddMembership(ctx, "g1", "alice"))
	require.NoError(t, m.AddMembership(ctx, "g2", "alice"))

	users, err := m.UsersOf(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, users)

	groups, err := m.GroupsOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, groups)
}

func TestMemory_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.EnsureGroup(ctx, "g1"))
		require.NoError(t, m.AddMembership(ctx, "g1", "alice"))
	}
	users, err := m.UsersOf(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	groups, err := m.GroupsOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, groups)
}

func TestMemory_UnknownIsEmpty(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	users, err := m.UsersOf(ctx, "nope")
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	groups, err := m.GroupsOf(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestMemory_EnsureGroupCreatesEmptyGroup(t *testing.T) {
	m := NewMemory()
	assert.False(t, m.HasGroup("g"))
	require.NoError(t, m.EnsureGroup(context.Background(), "g"))
	assert.True(t, m.HasGroup("g"))
}

func TestMemory_InvalidIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"ensure group", func() error { return m.EnsureGroup(ctx, "") }},
		{"ensure user", func() error { return m.EnsureUser(ctx, "") }},
		{"add empty group", func() error { return m.AddMembership(ctx, "", "u") }},
		{"add empty user", func() error { return m.AddMembership(ctx, "g", "") }},
		{"users of", func() error { _, err := m.UsersOf(ctx, ""); return err }},
		{"groups of", func() error { _, err := m.GroupsOf(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrInvalidID)
		})
	}
}

func TestMemory_ConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.AddMembership(ctx, "g", fmt.Sprintf("u%02d", i%10)))
		}(i)
	}
	wg.Wait()

	users, err := m.UsersOf(ctx, "g")
	require.NoError(t, err)
	assert.Len(t, users, 10)
}

func TestInsertSorted(t *testing.T) {
	xs, changed := insertSorted([]string{"a", "c"}, "b")
	assert.True(t, changed)
	assert.Equal(t, []string{"a", "b", "c"}, xs)

	xs, changed = insertSorted(xs, "b")
	assert.False(t, changed)
	assert.Equal(t, []string{"a", "b", "c"}, xs)

	xs, _ = insertSorted(nil, "z")
	assert.Equal(t, []string{"z"}, xs)
}
