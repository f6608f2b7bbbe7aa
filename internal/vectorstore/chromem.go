package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty runs fully in-memory,
	// which is what the test suites use.
	Path string

	// Compress gzip-compresses persisted collection files.
	Compress bool

	// Dimension is the fixed embedding dimensionality.
	Dimension int

	// Isolation selects the tenant isolation mode. Defaults to payload.
	Isolation IsolationMode

	// Concurrency bounds parallel document writes. Defaults to 4.
	Concurrency int
}

// ChromemStore is the embedded vector store. chromem-go performs exact
// cosine search, so EfSearch and Maintain are no-ops; isolation and
// dimensional checks behave identically to the Qdrant store.
type ChromemStore struct {
	db        *chromem.DB
	iso       *isolation
	logger    *zap.Logger
	metrics   *Metrics
	dimension int
	conc      int

	mu sync.Mutex // guards collection create/delete
}

// NewChromemStore creates a chromem-backed store. With an empty Path the
// store is in-memory and non-durable.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	mode := cfg.Isolation
	if mode == "" {
		mode = IsolationPayload
	}
	iso, err := newIsolation(mode)
	if err != nil {
		return nil, err
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 4
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: open chromem at %s: %v", ErrUnavailable, cfg.Path, err)
		}
	}

	logger.Info("chromem store initialized",
		zap.String("path", cfg.Path),
		zap.Int("dimension", cfg.Dimension),
		zap.String("isolation", string(mode)),
	)

	return &ChromemStore{
		db:        db,
		iso:       iso,
		logger:    logger,
		metrics:   NewMetrics("chromem"),
		dimension: cfg.Dimension,
		conc:      conc,
	}, nil
}

// noEmbedding rejects any attempt to embed inside the store. All vectors are
// computed upstream and passed in precomputed.
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("store does not embed: vectors must be precomputed")
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.GetOrCreateCollection(name, nil, noEmbedding); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection removes a collection and all its records.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	return s.db.GetCollection(name, noEmbedding) != nil, nil
}

// Upsert writes records with tenant metadata injected and vectors validated.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, recs []Record) error {
	done := s.metrics.start(ctx, "upsert", collection)
	err := s.upsert(ctx, collection, recs)
	done(err, len(recs))
	return err
}

func (s *ChromemStore) upsert(ctx context.Context, collection string, recs []Record) error {
	if len(recs) == 0 {
		return ErrEmptyRecords
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(recs))
	for _, r := range recs {
		if r.ID == "" {
			return fmt.Errorf("%w: record missing id", ErrInvalidEntity)
		}
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: vector dimension %d, want %d (id=%s)",
				ErrInvalidEntity, len(r.Vector), s.dimension, r.ID)
		}
		meta, err := s.iso.tenantMetadata(ctx, r.Metadata)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEntity, err)
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Vector,
			Metadata:  toStringMap(meta),
		})
	}

	if err := col.AddDocuments(ctx, docs, s.conc); err != nil {
		return fmt.Errorf("upsert %d records into %s: %w", len(docs), collection, err)
	}
	return nil
}

// Get fetches a record by ID. Records outside the tenant scope report
// ErrNotFound; ownership is never revealed across tenants.
func (s *ChromemStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	meta := fromStringMap(doc.Metadata)
	if !s.iso.belongsTo(ctx, meta) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &Record{
		ID:       doc.ID,
		Content:  doc.Content,
		Vector:   doc.Embedding,
		Metadata: meta,
	}, nil
}

// Delete removes records by ID, constrained to the caller's tenant. chromem
// ignores the ID list when a where filter is set, so ownership is checked
// per ID before an unfiltered ID delete.
func (s *ChromemStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	if _, err := s.iso.tenantFilter(ctx, nil); err != nil {
		return err
	}

	owned := make([]string, 0, len(ids))
	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			continue // absent rows are a successful delete
		}
		if s.iso.belongsTo(ctx, fromStringMap(doc.Metadata)) {
			owned = append(owned, id)
		}
	}
	if len(owned) == 0 {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, owned...); err != nil {
		return fmt.Errorf("delete %d records from %s: %w", len(owned), collection, err)
	}
	return nil
}

// DeleteByFilter removes all records matching filter within the tenant or
// scope on ctx. chromem does not report deleted counts, so the count is the
// collection size delta measured under the store mutex.
func (s *ChromemStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	where, err := s.iso.tenantFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := col.Count()
	if err := col.Delete(ctx, toStringMap(where), nil); err != nil {
		return 0, fmt.Errorf("delete by filter from %s: %w", collection, err)
	}
	return before - col.Count(), nil
}

// DeleteByScope removes all records within a partial tenant scope.
func (s *ChromemStore) DeleteByScope(ctx context.Context, collection string, scope tenant.Scope, filter map[string]any) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	where, err := s.iso.scopeFilter(ctx, scope, filter)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := col.Count()
	if err := col.Delete(ctx, toStringMap(where), nil); err != nil {
		return 0, fmt.Errorf("delete by scope from %s: %w", collection, err)
	}
	return before - col.Count(), nil
}

// Search performs exact cosine similarity search with the tenant predicate
// applied before scoring. k is clamped to the collection size; an empty
// collection yields an empty result, not an error.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]Result, error) {
	done := s.metrics.start(ctx, "search", collection)
	res, err := s.search(ctx, collection, vector, k, opts)
	done(err, len(res))
	return res, err
}

func (s *ChromemStore) search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]Result, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector dimension %d, want %d",
			ErrInvalidEntity, len(vector), s.dimension)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidEntity)
	}
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	where, err := s.iso.tenantFilter(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}

	// chromem errors when nResults exceeds the collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	hits, err := col.QueryEmbedding(ctx, vector, k, toStringMap(where), nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ID:       h.ID,
			Content:  h.Content,
			Score:    h.Similarity,
			Metadata: fromStringMap(h.Metadata),
		})
	}
	return results, nil
}

// Count returns the total record count for a collection.
func (s *ChromemStore) Count(ctx context.Context, collection string) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Maintain is a no-op: chromem performs exact search with no index to
// rebuild.
func (s *ChromemStore) Maintain(ctx context.Context, collection string) error {
	_, err := s.collection(collection)
	return err
}

// Dimension returns the configured embedding dimensionality.
func (s *ChromemStore) Dimension() int {
	return s.dimension
}

// Close releases resources. chromem holds no external connections.
func (s *ChromemStore) Close() error {
	return nil
}
