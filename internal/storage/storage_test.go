package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/bugtracker/internal/types"
)

func TestNewStorageSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := NewStorage(ctx, &Config{Path: filepath.Join(t.TempDir(), "nested", "bugs.db")})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	dev := &types.Developer{Email: "owner@example.com"}
	require.NoError(t, store.CreateDeveloper(ctx, dev))
	err = store.CreateDeveloper(ctx, &types.Developer{Email: "OWNER@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestNewStorageUnknownBackend(t *testing.T) {
	_, err := NewStorage(context.Background(), &Config{Backend: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, ".bugtracker/bugs.db", cfg.Path)
}
