package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileParsesMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "norm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: memory\nmemory:\n  inMemory: true\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)
	assert.True(t, cfg.Memory.InMemory)
}

func TestLoadFileRequiresBackendField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "norm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  inMemory: true\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileMissingFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestFindConfigFileWalksUpToRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "norm.yaml"), []byte("backend: memory\n"), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(cwd)
	require.NoError(t, os.Chdir(nested))

	found := findConfigFile(defaultFileName)
	assert.Equal(t, filepath.Join(root, "norm.yaml"), found)
}

func TestFindConfigFileNotFound(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(cwd)
	require.NoError(t, os.Chdir(dir))

	assert.Empty(t, findConfigFile("norm-file-that-does-not-exist.yaml"))
}

func TestOpenDispatchesToRegisteredBackends(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, BackendConfig{Backend: "memory", Memory: MemoryConfig{InMemory: true}})
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close(ctx)

	store2, err := Open(ctx, BackendConfig{Backend: "sqlite", SQLite: SQLiteConfig{}})
	require.NoError(t, err)
	require.NotNil(t, store2)
	defer store2.Close(ctx)

	_, err = Open(ctx, BackendConfig{Backend: "bogus"})
	require.Error(t, err)
}
