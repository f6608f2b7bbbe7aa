package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/boundary"
	"github.com/fyrsmithlabs/knowledged/internal/chunking"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

type stubProvider struct{}

func (p *stubProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (p *stubProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (p *stubProvider) Dimension() int { return 2 }
func (p *stubProvider) Close() error   { return nil }

func newTestGate(t *testing.T) *boundary.Service {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dimension: 2}, zap.NewNop())
	require.NoError(t, err)

	provider := &stubProvider{}
	kn, err := knowledge.NewService(knowledge.Config{
		Namespace: "test",
		Chunking:  chunking.Config{ThresholdChars: 4096},
	}, store, provider, zap.NewNop())
	require.NoError(t, err)

	rt, err := retrieval.NewService(retrieval.Config{}, kn, provider, zap.NewNop())
	require.NoError(t, err)

	return boundary.NewService(boundary.Config{}, kn, rt, zap.NewNop())
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(nil, newTestGate(t))
	require.NoError(t, err)
	require.NotNil(t, srv)
}

func TestNewServerRequiresGate(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil)
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "knowledged", cfg.Name)
	assert.NotNil(t, cfg.Logger)
}

func TestToResults(t *testing.T) {
	updated := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	results := toResults([]retrieval.Source{
		{
			Path:      "docs/a.md",
			Title:     "A",
			Promotion: knowledge.PromotionPinned,
			Score:     0.91,
			Content:   "body",
			UpdatedAt: updated,
		},
		{Path: "docs/b.md", Promotion: knowledge.PromotionStandard},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "pinned", results[0].Promotion)
	assert.Equal(t, "2026-03-14T09:00:00Z", results[0].UpdatedAt)
	assert.Empty(t, results[1].UpdatedAt)
}
