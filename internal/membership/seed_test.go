package membership

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string][]string
		wantErr bool
	}{
		{
			name:  "groups",
			input: "groups:\n  team-a: [alice, bob]\n  lobby: []\n",
			want:  map[string][]string{"team-a": {"alice", "bob"}, "lobby": {}},
		},
		{name: "empty file", input: "", want: nil},
		{name: "unknown field", input: "teams:\n  a: [x]\n", wantErr: true},
		{name: "empty user", input: "groups:\n  g: [\"\"]\n", wantErr: true},
		{name: "not a map", input: "groups: [a, b]\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed, err := ParseSeed(strings.NewReader(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, seed.Groups)
		})
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups:\n  g1: [alice, bob]\n  g2: []\n"), 0o600))

	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.AddMembership(ctx, "g1", "carol"))

	n, err := LoadSeedFile(ctx, path, m)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	users, err := m.UsersOf(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)
	assert.True(t, m.HasGroup("g2"))
}

func TestLoadSeedFile_Missing(t *testing.T) {
	_, err := LoadSeedFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), NewMemory())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
