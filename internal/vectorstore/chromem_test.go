package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

const testDimension = 4

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Dimension: testDimension,
		Isolation: IsolationPayload,
	}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func testTenantCtx(project, branch, workspace string) context.Context {
	return tenant.ContextWith(context.Background(), tenant.Context{
		Project:       project,
		Branch:        branch,
		WorkspaceHash: workspace,
	})
}

func vec(vals ...float32) []float32 {
	v := make([]float32, testDimension)
	copy(v, vals)
	return v
}

func TestChromemStore_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "webshop_docs"))
	require.NoError(t, store.Upsert(ctx, "webshop_docs", []Record{
		{
			ID:       "doc-1",
			Content:  "payment flow overview",
			Vector:   vec(1, 0, 0, 0),
			Metadata: map[string]any{"doc_type": "design"},
		},
	}))

	rec, err := store.Get(ctx, "webshop_docs", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", rec.ID)
	assert.Equal(t, "payment flow overview", rec.Content)
	assert.Equal(t, "design", rec.Metadata["doc_type"])
	// Tenant fields are stamped on stored metadata.
	assert.Equal(t, "webshop", rec.Metadata["project"])
	assert.Equal(t, "main", rec.Metadata["branch"])
}

func TestChromemStore_UpsertRequiresTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(testTenantCtx("webshop", "main", "ws1"), "webshop_docs"))
	err := store.Upsert(ctx, "webshop_docs", []Record{
		{ID: "doc-1", Content: "x", Vector: vec(1)},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
}

func TestChromemStore_UpsertDimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "webshop_docs"))
	err := store.Upsert(ctx, "webshop_docs", []Record{
		{ID: "doc-1", Content: "x", Vector: []float32{1, 0}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestChromemStore_SearchTenantIsolation(t *testing.T) {
	store := newTestStore(t)
	ctxA := testTenantCtx("webshop", "main", "ws1")
	ctxB := testTenantCtx("analytics", "main", "ws2")

	require.NoError(t, store.EnsureCollection(ctxA, "shared"))
	require.NoError(t, store.Upsert(ctxA, "shared", []Record{
		{ID: "a-1", Content: "tenant A doc", Vector: vec(1, 0, 0, 0)},
	}))
	require.NoError(t, store.Upsert(ctxB, "shared", []Record{
		{ID: "b-1", Content: "tenant B doc", Vector: vec(1, 0, 0, 0)},
	}))

	// Identical query vector; each tenant only sees its own rows.
	results, err := store.Search(ctxA, "shared", vec(1, 0, 0, 0), 10, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a-1", results[0].ID)

	results, err = store.Search(ctxB, "shared", vec(1, 0, 0, 0), 10, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b-1", results[0].ID)
}

func TestChromemStore_SearchMissingTenantFailsClosed(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "docs"))
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "doc-1", Content: "x", Vector: vec(1)},
	}))

	_, err := store.Search(context.Background(), "docs", vec(1), 5, SearchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
}

func TestChromemStore_GetCrossTenantReportsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctxA := testTenantCtx("webshop", "main", "ws1")
	ctxB := testTenantCtx("analytics", "main", "ws2")

	require.NoError(t, store.EnsureCollection(ctxA, "docs"))
	require.NoError(t, store.Upsert(ctxA, "docs", []Record{
		{ID: "a-1", Content: "secret", Vector: vec(1)},
	}))

	// Tenant B must not learn the record exists.
	_, err := store.Get(ctxB, "docs", "a-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChromemStore_SearchClampsK(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "docs"))
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "doc-1", Content: "a", Vector: vec(1, 0, 0, 0)},
		{ID: "doc-2", Content: "b", Vector: vec(0, 1, 0, 0)},
	}))

	results, err := store.Search(ctx, "docs", vec(1, 0, 0, 0), 50, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestChromemStore_SearchEmptyCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "empty"))
	results, err := store.Search(ctx, "empty", vec(1), 5, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStore_SearchOrderedByScore(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "docs"))
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "close", Content: "a", Vector: vec(1, 0.1, 0, 0)},
		{ID: "far", Content: "b", Vector: vec(0, 1, 0, 0)},
		{ID: "exact", Content: "c", Vector: vec(1, 0, 0, 0)},
	}))

	results, err := store.Search(ctx, "docs", vec(1, 0, 0, 0), 3, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "exact", results[0].ID)
	assert.Equal(t, "close", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.GreaterOrEqual(t, results[1].Score, results[2].Score)
}

func TestChromemStore_SearchWithMetadataFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "docs"))
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "d1", Content: "a", Vector: vec(1), Metadata: map[string]any{"doc_type": "design"}},
		{ID: "d2", Content: "b", Vector: vec(1), Metadata: map[string]any{"doc_type": "runbook"}},
	}))

	results, err := store.Search(ctx, "docs", vec(1), 10, SearchOptions{
		Filter: map[string]any{"doc_type": "runbook"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].ID)
}

func TestChromemStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	require.NoError(t, store.EnsureCollection(ctx, "docs"))
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "d1", Content: "a", Vector: vec(1)},
		{ID: "d2", Content: "b", Vector: vec(0, 1)},
	}))

	require.NoError(t, store.Delete(ctx, "docs", []string{"d1"}))

	_, err := store.Get(ctx, "docs", "d1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "docs", "d2")
	assert.NoError(t, err)
}

func TestChromemStore_DeleteByFilter(t *testing.T) {
	store := newTestStore(t)
	ctxA := testTenantCtx("webshop", "main", "ws1")
	ctxB := testTenantCtx("analytics", "main", "ws2")

	require.NoError(t, store.EnsureCollection(ctxA, "docs"))
	require.NoError(t, store.Upsert(ctxA, "docs", []Record{
		{ID: "a-1", Content: "a", Vector: vec(1), Metadata: map[string]any{"path": "docs/readme.md"}},
		{ID: "a-2", Content: "b", Vector: vec(1), Metadata: map[string]any{"path": "docs/other.md"}},
	}))
	require.NoError(t, store.Upsert(ctxB, "docs", []Record{
		{ID: "b-1", Content: "c", Vector: vec(1), Metadata: map[string]any{"path": "docs/readme.md"}},
	}))

	// Only tenant A's matching row is removed.
	deleted, err := store.DeleteByFilter(ctxA, "docs", map[string]any{"path": "docs/readme.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	count, err := store.Count(ctxA, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChromemStore_DeleteByScope(t *testing.T) {
	store := newTestStore(t)
	ctxMain := testTenantCtx("webshop", "main", "ws1")
	ctxDev := testTenantCtx("webshop", "dev", "ws1")
	ctxOther := testTenantCtx("analytics", "main", "ws2")

	require.NoError(t, store.EnsureCollection(ctxMain, "docs"))
	require.NoError(t, store.Upsert(ctxMain, "docs", []Record{{ID: "m1", Content: "a", Vector: vec(1)}}))
	require.NoError(t, store.Upsert(ctxDev, "docs", []Record{{ID: "d1", Content: "b", Vector: vec(1)}}))
	require.NoError(t, store.Upsert(ctxOther, "docs", []Record{{ID: "o1", Content: "c", Vector: vec(1)}}))

	// Project-wide scope removes both branches, leaves the other project.
	deleted, err := store.DeleteByScope(context.Background(), "docs", tenant.Scope{Project: "webshop"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := store.Count(ctxOther, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChromemStore_CollectionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	exists, err := store.CollectionExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureCollection(ctx, "docs"))
	// Idempotent.
	require.NoError(t, store.EnsureCollection(ctx, "docs"))

	exists, err = store.CollectionExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.DeleteCollection(ctx, "docs"))
	exists, err = store.CollectionExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChromemStore_UnknownCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := testTenantCtx("webshop", "main", "ws1")

	_, err := store.Search(ctx, "missing", vec(1), 5, SearchOptions{})
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	err = store.Upsert(ctx, "missing", []Record{{ID: "x", Content: "y", Vector: vec(1)}})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestChromemStore_InvalidConfig(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{Dimension: 0}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewChromemStore(ChromemConfig{Dimension: 4, Isolation: "bogus"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewChromemStore(ChromemConfig{Dimension: 4}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemStore_IsolationNone(t *testing.T) {
	store, err := NewChromemStore(ChromemConfig{
		Dimension: testDimension,
		Isolation: IsolationNone,
	}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, "docs"))
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "d1", Content: "a", Vector: vec(1)},
	}))

	results, err := store.Search(ctx, "docs", vec(1), 5, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid simple", input: "webshop_docs"},
		{name: "valid with numbers", input: "project_42_knowledge"},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase", input: "Webshop", wantErr: true},
		{name: "hyphen", input: "webshop-docs", wantErr: true},
		{name: "spaces", input: "webshop docs", wantErr: true},
		{name: "path traversal", input: "../etc/passwd", wantErr: true},
		{name: "too long", input: string(make([]byte, 65)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsolationModeValidate(t *testing.T) {
	assert.NoError(t, IsolationPayload.Validate())
	assert.NoError(t, IsolationNone.Validate())
	assert.Error(t, IsolationMode("filesystem").Validate())
}

func TestMergeFilters(t *testing.T) {
	a := map[string]any{"project": "spoofed", "doc_type": "design"}
	b := map[string]any{"project": "webshop"}
	merged := mergeFilters(a, b)

	// Overlay wins: caller-supplied tenant keys are never trusted.
	assert.Equal(t, "webshop", merged["project"])
	assert.Equal(t, "design", merged["doc_type"])
	// Inputs are not mutated.
	assert.Equal(t, "spoofed", a["project"])
}

func TestStringMapRoundTrip(t *testing.T) {
	meta := map[string]any{
		"project":     "webshop",
		"chunk_index": 3,
		"char_count":  120,
		// Free-text fields keep their string type even when the content
		// looks numeric or boolean.
		"title":   "2024",
		"summary": "true",
	}
	back := fromStringMap(toStringMap(meta))
	assert.Equal(t, "webshop", back["project"])
	assert.Equal(t, int64(3), back["chunk_index"])
	assert.Equal(t, int64(120), back["char_count"])
	assert.Equal(t, "2024", back["title"])
	assert.Equal(t, "true", back["summary"])
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(errors.New("plain error")))
	assert.True(t, IsTransientError(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, IsTransientError(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.False(t, IsTransientError(status.Error(grpccodes.InvalidArgument, "bad")))
	assert.False(t, IsTransientError(status.Error(grpccodes.NotFound, "missing")))
}
