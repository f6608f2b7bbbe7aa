package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
)

func TestNewGateFromDefaults(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	gate, cleanup, err := newGate(&cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, gate)
}

func TestHeadingTitle(t *testing.T) {
	assert.Equal(t, "Deploy Notes", headingTitle("# Deploy Notes\n\nbody", "docs/deploy.md"))
	assert.Equal(t, "deploy", headingTitle("no heading here", "docs/deploy.md"))
	assert.Equal(t, "Deep", headingTitle("intro\n# Deep\n## Sub", "x.md"))
}

func TestRelativeTo(t *testing.T) {
	root := t.TempDir()

	rel, err := relativeTo(root, filepath.Join(root, "docs", "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "docs/a.md", rel)

	_, err = relativeTo(root, filepath.Join(root, "..", "outside.md"))
	require.Error(t, err)
}
