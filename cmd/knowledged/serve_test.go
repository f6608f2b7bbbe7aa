package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
)

func TestNewStoreDefaultsToChromem(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()

	store, err := newStore(&cfg, 384, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 384, store.Dimension())
}

func TestProjectRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, config.ProjectFileName), []byte("name: acme\n"), 0600))

	root, err := projectRoot(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, root)

	_, err = projectRoot(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
