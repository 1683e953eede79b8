package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spese-report/internal/config"
)

const seedYAML = `users:
  - id: u1
    email: ada@example.com
    name: Ada
entries:
  - userId: u1
    date: "2024-03-02"
    items:
      - category: Food
        amount: "12.50"
`

func TestCreateBackend_Memory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	ctx := context.Background()
	b, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, MemorySeedFile: path})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Ping(ctx))
	u, err := b.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
}

func TestCreateBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "reports.db")
	b, err := Open(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path}, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Ping(ctx))
	users, err := b.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestCreateBackend_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown type", Config{Type: "sheets"}},
		{"sqlite without path", Config{Type: SQLiteBackend}},
		{"postgres without url", Config{Type: PostgresBackend}},
		{"missing seed file", Config{Type: MemoryBackend, MemorySeedFile: "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(nil).CreateBackend(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestBackendType_IsValid(t *testing.T) {
	assert.True(t, MemoryBackend.IsValid())
	assert.True(t, PostgresBackend.IsValid())
	assert.False(t, BackendType("sheets").IsValid())
}

func TestFromAppConfig(t *testing.T) {
	c := &config.Config{DataBackend: "postgres", DatabaseURL: "postgres://localhost/reports"}
	got := FromAppConfig(c)
	assert.Equal(t, PostgresBackend, got.Type)
	assert.Equal(t, "postgres://localhost/reports", got.DatabaseURL)
	assert.Equal(t, int32(10), got.MaxConns)
}
