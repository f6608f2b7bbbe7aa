package retrieval

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/chunking"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

const testDim = 16

type hashProvider struct{}

func (p *hashProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t)
	}
	return out, nil
}

func (p *hashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return hashEmbed(text), nil
}

func (p *hashProvider) Dimension() int { return testDim }
func (p *hashProvider) Close() error   { return nil }

func hashEmbed(text string) []float32 {
	v := make([]float32, testDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%testDim]++
	}
	v[0] += 0.001
	return v
}

func newTestServices(t *testing.T, cfg Config) (*Service, *knowledge.Service) {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Dimension: testDim,
	}, zap.NewNop())
	require.NoError(t, err)

	provider := &hashProvider{}
	kn, err := knowledge.NewService(knowledge.Config{
		Namespace: "test",
		Chunking:  chunking.Config{ThresholdChars: 4096},
	}, store, provider, zap.NewNop())
	require.NoError(t, err)

	svc, err := NewService(cfg, kn, provider, zap.NewNop())
	require.NoError(t, err)
	return svc, kn
}

func tenantCtx() context.Context {
	return tenant.ContextWith(context.Background(), tenant.Context{
		Project:       "webshop",
		Branch:        "main",
		WorkspaceHash: "ws1",
	})
}

func TestSearchRoundTrip(t *testing.T) {
	svc, kn := newTestServices(t, Config{})
	ctx := tenantCtx()

	docs := map[string]string{
		"docs/payments.md":  "payment settlement and refund handling",
		"docs/inventory.md": "inventory restock thresholds and alerts",
		"docs/auth.md":      "session token rotation policy",
	}
	for path, content := range docs {
		_, err := kn.Index(ctx, knowledge.IndexRequest{Path: path, Content: content, Title: content})
		require.NoError(t, err)
	}

	// A document's own title as query returns it first.
	results, err := svc.Search(ctx, SearchRequest{Query: "inventory restock thresholds and alerts"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "docs/inventory.md", results[0].Path)
	assert.Greater(t, results[0].Score, float32(0.25))
}

func TestSearchOrderedBySimilarityOnly(t *testing.T) {
	svc, kn := newTestServices(t, Config{})
	ctx := tenantCtx()

	_, err := kn.Index(ctx, knowledge.IndexRequest{Path: "docs/close.md", Content: "checkout retry policy details"})
	require.NoError(t, err)
	_, err = kn.Index(ctx, knowledge.IndexRequest{Path: "docs/far.md", Content: "unrelated gardening notes"})
	require.NoError(t, err)
	// Promote the dissimilar doc; plain search must still rank by score.
	require.NoError(t, kn.SetPromotion(ctx, "docs/far.md", knowledge.PromotionPinned))

	results, err := svc.Search(ctx, SearchRequest{Query: "checkout retry policy details"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "docs/close.md", results[0].Path)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchLimitClamped(t *testing.T) {
	svc, kn := newTestServices(t, Config{MaxLimit: 2})
	ctx := tenantCtx()

	for _, path := range []string{"docs/a.md", "docs/b.md", "docs/c.md"} {
		_, err := kn.Index(ctx, knowledge.IndexRequest{Path: path, Content: "shared topic words " + path})
		require.NoError(t, err)
	}

	results, err := svc.Search(ctx, SearchRequest{Query: "shared topic words", Limit: 99})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestQueryPinnedIncludedRegardlessOfSimilarity(t *testing.T) {
	svc, kn := newTestServices(t, Config{MinSimilarity: 0.2, PinnedCap: 3})
	ctx := tenantCtx()

	_, err := kn.Index(ctx, knowledge.IndexRequest{
		Path:    "docs/style.md",
		Content: "always use guard clauses in handlers",
		Title:   "Style rules",
	})
	require.NoError(t, err)
	_, err = kn.Index(ctx, knowledge.IndexRequest{
		Path:    "docs/deploy.md",
		Content: "deployment rollback checklist for releases",
		Title:   "Deploy checklist",
	})
	require.NoError(t, err)
	require.NoError(t, kn.SetPromotion(ctx, "docs/style.md", knowledge.PromotionPinned))

	// Query unrelated to the pinned doc: it must still come first.
	res, err := svc.Query(ctx, QueryRequest{
		Query:          "deployment rollback checklist for releases",
		IncludeTopTier: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, "docs/style.md", res.Sources[0].Path)
	assert.Equal(t, knowledge.PromotionPinned, res.Sources[0].Promotion)

	// The similar doc fills the next slot.
	require.Greater(t, len(res.Sources), 1)
	assert.Equal(t, "docs/deploy.md", res.Sources[1].Path)

	assert.Contains(t, res.Context, "guard clauses")
	assert.Contains(t, res.Context, "rollback checklist")
}

func TestQueryWithoutTopTier(t *testing.T) {
	svc, kn := newTestServices(t, Config{MinSimilarity: 0.2})
	ctx := tenantCtx()

	_, err := kn.Index(ctx, knowledge.IndexRequest{Path: "docs/style.md", Content: "quarterly budget meeting cadence"})
	require.NoError(t, err)
	require.NoError(t, kn.SetPromotion(ctx, "docs/style.md", knowledge.PromotionPinned))
	_, err = kn.Index(ctx, knowledge.IndexRequest{Path: "docs/deploy.md", Content: "deployment rollback checklist"})
	require.NoError(t, err)

	res, err := svc.Query(ctx, QueryRequest{
		Query:          "deployment rollback checklist",
		IncludeTopTier: false,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Sources)
	// Without top-tier inclusion the dissimilar pinned doc is cut off.
	for _, src := range res.Sources {
		assert.NotEqual(t, "docs/style.md", src.Path)
	}
}

func TestQueryMinSimilarityCutoff(t *testing.T) {
	svc, kn := newTestServices(t, Config{MinSimilarity: 0.9})
	ctx := tenantCtx()

	_, err := kn.Index(ctx, knowledge.IndexRequest{Path: "docs/a.md", Content: "alpha beta gamma"})
	require.NoError(t, err)

	res, err := svc.Query(ctx, QueryRequest{Query: "completely different vocabulary entirely"})
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.Context)
}

func TestQueryPinnedCap(t *testing.T) {
	svc, kn := newTestServices(t, Config{PinnedCap: 1, MinSimilarity: 0.99})
	ctx := tenantCtx()

	for _, path := range []string{"docs/p1.md", "docs/p2.md", "docs/p3.md"} {
		_, err := kn.Index(ctx, knowledge.IndexRequest{Path: path, Content: "pinned content " + path})
		require.NoError(t, err)
		require.NoError(t, kn.SetPromotion(ctx, path, knowledge.PromotionPinned))
	}

	res, err := svc.Query(ctx, QueryRequest{Query: "anything", IncludeTopTier: true})
	require.NoError(t, err)
	assert.Len(t, res.Sources, 1)
}

func TestSortBySimilarityTieBreaks(t *testing.T) {
	now := time.Now()
	sources := []Source{
		{Path: "b.md", Score: 0.5, Promotion: knowledge.PromotionStandard, UpdatedAt: now},
		{Path: "a.md", Score: 0.5, Promotion: knowledge.PromotionElevated, UpdatedAt: now.Add(-time.Hour)},
		{Path: "c.md", Score: 0.7, Promotion: knowledge.PromotionStandard, UpdatedAt: now},
		{Path: "d.md", Score: 0.5, Promotion: knowledge.PromotionStandard, UpdatedAt: now.Add(time.Hour)},
	}
	sortBySimilarity(sources)

	// Highest score first; ties break by tier, then recency.
	assert.Equal(t, "c.md", sources[0].Path)
	assert.Equal(t, "a.md", sources[1].Path)
	assert.Equal(t, "d.md", sources[2].Path)
	assert.Equal(t, "b.md", sources[3].Path)
}

func TestSearchRequiresTenant(t *testing.T) {
	svc, kn := newTestServices(t, Config{})
	ctx := tenantCtx()
	_, err := kn.Index(ctx, knowledge.IndexRequest{Path: "docs/a.md", Content: "x y"})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), SearchRequest{Query: "x y"})
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
}
