// Package vectorstore provides tenant-scoped vector storage implementations.
//
// Two engines are supported: chromem-go (embedded, default) and Qdrant
// (external, gRPC). Both enforce tenant isolation as a mandatory pre-filter:
// the tenant predicate is applied before similarity computation, never as a
// post-filter on the top-k results.
package vectorstore

import (
	"context"
	"errors"
	"regexp"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrNotFound is returned when a record is absent. Absence is a typed
	// result, not an exceptional condition.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable indicates the backing engine cannot be reached.
	// Retryable by the caller with backoff.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidEntity indicates a constraint violation (dimension mismatch,
	// missing tenant metadata). Non-retryable; signals a caller bug.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates an empty or nil record batch.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against security rules.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return errors.Join(ErrInvalidCollectionName, errors.New("empty name"))
	}
	if !collectionNamePattern.MatchString(name) {
		return errors.Join(ErrInvalidCollectionName, errors.New("must match ^[a-z0-9_]{1,64}$"))
	}
	return nil
}

// Record is a stored vector row: a document or chunk with its embedding.
//
// Vectors are computed by the caller before upsert; the store validates their
// dimensionality against the collection's configured size and rejects
// mismatches rather than truncating or padding.
type Record struct {
	// ID is the unique identifier within the collection.
	ID string

	// Content is the text this vector was computed from.
	Content string

	// Vector is the precomputed embedding.
	Vector []float32

	// Metadata carries tenant fields plus entity attributes used in filters.
	Metadata map[string]any
}

// Result is a similarity search hit.
type Result struct {
	// ID is the record identifier.
	ID string

	// Content is the record text content.
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the record metadata.
	Metadata map[string]any
}

// SearchOptions tunes a single search call.
type SearchOptions struct {
	// Filter is merged with the mandatory tenant filter. All conditions
	// must match.
	Filter map[string]any

	// EfSearch overrides the engine's query-time search depth, trading
	// recall for latency. 0 uses the configured default. Engines without a
	// tunable index (chromem performs exact search) ignore it.
	EfSearch int
}

// Store is the tenant-scoped vector storage interface.
//
// Every read and write extracts the tenant context from ctx and applies it
// fail-closed: operations without tenant context return an error wrapping
// tenant.ErrMissingTenant, never cross-tenant data and never empty success.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string) error

	// DeleteCollection deletes a collection and all its records.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Upsert writes records. Tenant metadata is injected into every record
	// before storage; vectors are validated against the collection
	// dimensionality.
	Upsert(ctx context.Context, collection string, recs []Record) error

	// Get fetches a record by ID. Records outside the caller's tenant
	// scope report ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Record, error)

	// Delete removes records by ID within the caller's tenant scope.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter removes all records matching the filter merged with
	// the tenant predicate from ctx. Returns the number of records
	// removed.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) (int, error)

	// DeleteByScope removes all records inside a partial tenant scope.
	// Used for project- or branch-wide cleanup where no single full
	// tenant context applies. Returns the number of records removed.
	DeleteByScope(ctx context.Context, collection string, scope tenant.Scope, filter map[string]any) (int, error)

	// Search performs similarity search with the tenant predicate applied
	// before similarity computation. Results are ordered by descending
	// score.
	Search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]Result, error)

	// Count returns the number of records in a collection (all tenants).
	Count(ctx context.Context, collection string) (int, error)

	// Maintain runs offline index maintenance (rebuild/compact) for a
	// collection. It must not block concurrent searches; readers see the
	// pre- or post-maintenance index, never a partial one.
	Maintain(ctx context.Context, collection string) error

	// Dimension returns the fixed vector dimensionality for this store.
	Dimension() int

	// Close releases resources.
	Close() error
}
