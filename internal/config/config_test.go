package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a config file under a fake home directory and points
// HOME at it so Load("") resolves to the file.
func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "knowledged")
	require.NoError(t, os.MkdirAll(dir, 0700))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.Store.Engine)
	assert.Equal(t, "tei", cfg.Embedding.Provider)
	assert.Equal(t, "knowledged", cfg.Knowledge.Namespace)
	assert.Equal(t, 9632, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 50, cfg.Retrieval.MaxLimit)
	assert.InDelta(t, 0.25, cfg.Retrieval.MinSimilarity, 1e-9)
	assert.Equal(t, 3, cfg.Retrieval.PinnedCap)
	assert.Equal(t, uint64(16), cfg.Store.HNSW.M)
	assert.Equal(t, uint64(128), cfg.Store.HNSW.EfConstruct)
	assert.Equal(t, []string{".md", ".markdown"}, cfg.Watch.Extensions)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
store:
  engine: qdrant
  qdrant:
    host: qdrant.internal
    port: 7001
retrieval:
  min_similarity: 0.5
knowledge:
  namespace: acme
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.Store.Engine)
	assert.Equal(t, "qdrant.internal", cfg.Store.Qdrant.Host)
	assert.Equal(t, 7001, cfg.Store.Qdrant.Port)
	assert.InDelta(t, 0.5, cfg.Retrieval.MinSimilarity, 1e-9)
	assert.Equal(t, "acme", cfg.Knowledge.Namespace)
	// Untouched sections keep their defaults.
	assert.Equal(t, "tei", cfg.Embedding.Provider)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "store:\n  engine: chromem\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadRejectsPathOutsideAllowedDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0600))

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORE_ENGINE", "qdrant")
	t.Setenv("EMBEDDING_BASE_URL", "http://tei.internal:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.Store.Engine)
	assert.Equal(t, "http://tei.internal:8080", cfg.Embedding.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "bad engine",
			mutate: func(c *Config) { c.Store.Engine = "pinecone" },
			errMsg: "store.engine",
		},
		{
			name:   "bad provider",
			mutate: func(c *Config) { c.Embedding.Provider = "openai" },
			errMsg: "embedding.provider",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "trace" },
			errMsg: "logging.level",
		},
		{
			name:   "similarity out of range",
			mutate: func(c *Config) { c.Retrieval.MinSimilarity = 1.5 },
			errMsg: "min_similarity",
		},
		{
			name:   "max below default limit",
			mutate: func(c *Config) { c.Retrieval.MaxLimit = 5 },
			errMsg: "max_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
name: github.com/acme/webshop
default_branch: trunk
`), 0600))

	p, err := LoadProject(dir)
	require.NoError(t, err)

	assert.Equal(t, "github.com/acme/webshop", p.Name)
	assert.Equal(t, "trunk", p.DefaultBranch)

	abs, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(p.Root)
	require.NoError(t, err)
	assert.Equal(t, abs, got)
}

func TestLoadProjectDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: acme\n"), 0600))

	p, err := LoadProject(path)
	require.NoError(t, err)

	assert.Equal(t, "main", p.DefaultBranch)
	assert.NotEmpty(t, p.Root)
}

func TestLoadProjectNotFound(t *testing.T) {
	_, err := LoadProject(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadProjectInvalid(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing name", func(t *testing.T) {
		path := filepath.Join(dir, "noname.yaml")
		require.NoError(t, os.WriteFile(path, []byte("root: /tmp\n"), 0600))
		_, err := LoadProject(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: [unclosed\n"), 0600))
		_, err := LoadProject(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}
