// Package knowledge implements the tenant-scoped document store: indexing
// with chunking and embedding, idempotent re-indexing keyed by content hash,
// atomic promotion propagation, and cascading deletes.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/knowledged/internal/chunking"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/sanitize"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

var tracer = otel.Tracer("knowledged.knowledge")

// Config configures the knowledge service.
type Config struct {
	// Namespace prefixes collection names so multiple deployments can
	// share one store. Default: "knowledged".
	Namespace string

	// Chunking tunes the chunking engine.
	Chunking chunking.Config
}

// ApplyDefaults sets defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "knowledged"
	}
	c.Chunking.ApplyDefaults()
}

// Service is the document store core. All operations take the tenant from
// ctx; operations without tenant context fail closed.
type Service struct {
	store    vectorstore.Store
	provider embeddings.Provider
	chunker  *chunking.Chunker
	logger   *zap.Logger
	config   Config

	// group coalesces duplicate concurrent indexing of identical content,
	// e.g. duplicate file-change notifications.
	group singleflight.Group

	// locks serializes writers per (tenant, path) so a re-index never
	// interleaves with another writer on the same document.
	locks sync.Map

	// promotions is the read-side promotion snapshot: docID -> level.
	// Readers annotate results from this map, so promotion propagation is
	// never observable half-applied. Guarded by promoMu.
	promoMu    sync.RWMutex
	promotions map[string]PromotionLevel
}

// NewService creates a knowledge service on top of a vector store and an
// embedding provider.
func NewService(cfg Config, store vectorstore.Store, provider embeddings.Provider, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidRequest)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrInvalidRequest)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidRequest)
	}
	cfg.ApplyDefaults()
	return &Service{
		store:      store,
		provider:   provider,
		chunker:    chunking.New(cfg.Chunking),
		logger:     logger,
		config:     cfg,
		promotions: make(map[string]PromotionLevel),
	}, nil
}

// Collection returns the collection name for a kind.
func (s *Service) Collection(kind string) string {
	return sanitize.CollectionName(s.config.Namespace, kind)
}

// EnsureCollections creates the knowledge and reference collections.
func (s *Service) EnsureCollections(ctx context.Context) error {
	for _, kind := range []string{KindKnowledge, KindReference} {
		if err := s.store.EnsureCollection(ctx, s.Collection(kind)); err != nil {
			return err
		}
	}
	return nil
}

// ContentHash returns the idempotence key for document content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IndexRequest describes a document to index.
type IndexRequest struct {
	// Path is the tenant-relative document path. Must already have passed
	// path-safety validation at the boundary.
	Path string

	// Content is the full document text.
	Content string

	// Title names the document in results. Defaults to the path.
	Title string

	// Summary is an optional short description.
	Summary string

	// DocType classifies the document (decision, style rule, ...).
	// Ignored for the reference kind.
	DocType string

	// Frontmatter is the opaque structured header blob, already validated
	// at the boundary.
	Frontmatter map[string]any

	// Kind selects the collection: KindKnowledge (default) or
	// KindReference.
	Kind string
}

// IndexResult reports the outcome of an index operation.
type IndexResult struct {
	DocumentID  string
	ContentHash string
	ChunkCount  int
	// Unchanged is true when the content hash matched the stored document
	// and indexing was a no-op.
	Unchanged bool
}

func (r IndexRequest) validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidRequest)
	}
	switch r.Kind {
	case "", KindKnowledge, KindReference:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
}

func (r IndexRequest) kind() string {
	if r.Kind == "" {
		return KindKnowledge
	}
	return r.Kind
}

// Index chunks, embeds and stores a document. Identical content is a no-op
// keyed by content hash. Concurrent indexing of the same (tenant, path) is
// serialized; duplicate concurrent submissions of identical content are
// coalesced into one write.
//
// If the embedding provider is degraded the operation fails before any write
// and the document stays at its previous indexed state.
func (s *Service) Index(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Index")
	defer span.End()

	if err := req.validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := tc.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hash := ContentHash(req.Content)
	span.SetAttributes(
		attribute.String("path", req.Path),
		attribute.Int("content_chars", len(req.Content)),
	)

	key := lockKey(tc, req.Path)
	v, err, shared := s.group.Do(key+"|"+hash, func() (any, error) {
		return s.index(ctx, tc, req, hash)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res := v.(*IndexResult)
	span.SetAttributes(
		attribute.Int("chunk_count", res.ChunkCount),
		attribute.Bool("unchanged", res.Unchanged),
		attribute.Bool("coalesced", shared),
	)
	span.SetStatus(codes.Ok, "success")
	return res, nil
}

func (s *Service) index(ctx context.Context, tc tenant.Context, req IndexRequest, hash string) (*IndexResult, error) {
	mu := s.pathLock(lockKey(tc, req.Path))
	mu.Lock()
	defer mu.Unlock()

	kind := req.kind()
	collection := s.Collection(kind)
	if err := s.store.EnsureCollection(ctx, collection); err != nil {
		return nil, err
	}

	docID := DocumentID(tc, req.Path)
	existing, err := s.store.Get(ctx, collection, docID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	oldChunks := 0
	promotion := PromotionStandard
	if existing != nil {
		oldChunks = metaInt(existing.Metadata, metaChunkCount)
		if lvl, perr := ParsePromotionLevel(metaString(existing.Metadata, metaPromotion)); perr == nil {
			promotion = lvl
		}
		if metaString(existing.Metadata, metaContentHash) == hash {
			s.rememberPromotion(docID, promotion)
			return &IndexResult{
				DocumentID:  docID,
				ContentHash: hash,
				ChunkCount:  oldChunks,
				Unchanged:   true,
			}, nil
		}
	}

	segments, err := s.chunker.Split(req.Content)
	if err != nil {
		return nil, fmt.Errorf("chunking %s: %w", req.Path, err)
	}
	if err := chunking.Validate(segments, chunking.CountLines(req.Content)); err != nil {
		return nil, fmt.Errorf("chunking %s: %w", req.Path, err)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Content
	}
	vectors, err := s.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		// Degraded embedding fails before any write: the document stays
		// at its previous indexed state.
		return nil, err
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("%w: got %d vectors for %d segments",
			embeddings.ErrDimensionMismatch, len(vectors), len(segments))
	}

	title := req.Title
	if title == "" {
		title = req.Path
	}
	now := time.Now().UTC()

	chunkRecs := make([]vectorstore.Record, 0, len(segments))
	for i, seg := range segments {
		meta := map[string]any{
			metaKind:       kindChunk,
			metaDocumentID: docID,
			metaPath:       req.Path,
			metaTitle:      title,
			metaChunkIndex: seg.Index,
			metaHeaderPath: seg.HeaderPath,
			metaStartLine:  seg.StartLine,
			metaEndLine:    seg.EndLine,
			metaUpdatedAt:  now.Format(time.RFC3339Nano),
		}
		if kind == KindKnowledge {
			meta[metaDocType] = req.DocType
			meta[metaPromotion] = string(promotion)
		}
		chunkRecs = append(chunkRecs, vectorstore.Record{
			ID:       ChunkID(tc, req.Path, seg.Index),
			Content:  seg.Content,
			Vector:   vectors[i],
			Metadata: meta,
		})
	}

	docMeta := map[string]any{
		metaKind:        kindDocument,
		metaPath:        req.Path,
		metaTitle:       title,
		metaSummary:     req.Summary,
		metaContentHash: hash,
		metaCharCount:   len(req.Content),
		metaChunkCount:  len(segments),
		metaUpdatedAt:   now.Format(time.RFC3339Nano),
	}
	if kind == KindKnowledge {
		docMeta[metaDocType] = req.DocType
		docMeta[metaPromotion] = string(promotion)
	}
	if len(req.Frontmatter) > 0 {
		raw, merr := json.Marshal(req.Frontmatter)
		if merr != nil {
			return nil, fmt.Errorf("%w: frontmatter not serializable: %v", ErrInvalidRequest, merr)
		}
		docMeta[metaFrontmatter] = string(raw)
	}

	// Chunks are replaced wholesale: new chunks overwrite by deterministic
	// ID, stale higher-index chunks from the previous version are removed,
	// and the document row is written last so its chunk_count never counts
	// chunks that are not yet stored.
	if err := s.store.Upsert(ctx, collection, chunkRecs); err != nil {
		return nil, err
	}
	if oldChunks > len(segments) {
		stale := make([]string, 0, oldChunks-len(segments))
		for i := len(segments); i < oldChunks; i++ {
			stale = append(stale, ChunkID(tc, req.Path, i))
		}
		if err := s.store.Delete(ctx, collection, stale); err != nil {
			return nil, err
		}
	}
	if err := s.store.Upsert(ctx, collection, []vectorstore.Record{{
		ID:       docID,
		Content:  title,
		Vector:   vectors[0],
		Metadata: docMeta,
	}}); err != nil {
		return nil, err
	}

	s.rememberPromotion(docID, promotion)
	s.logger.Info("document indexed",
		zap.String("path", req.Path),
		zap.String("kind", kind),
		zap.Int("chunks", len(segments)),
		zap.Int("chars", len(req.Content)),
	)
	return &IndexResult{
		DocumentID:  docID,
		ContentHash: hash,
		ChunkCount:  len(segments),
	}, nil
}

// Get fetches a document by path within the caller's tenant.
func (s *Service) Get(ctx context.Context, path, kind string) (*Document, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = KindKnowledge
	}
	docID := DocumentID(tc, path)
	rec, err := s.store.Get(ctx, s.Collection(kind), docID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return s.documentFromRecord(tc, rec), nil
}

// SetPromotion atomically sets a document's promotion level and propagates it
// to every chunk. The promotion snapshot flips before the rows are rewritten,
// so readers annotate results uniformly at either the old or the new level,
// never a mix. On partial failure the snapshot and rows roll back.
func (s *Service) SetPromotion(ctx context.Context, path string, level PromotionLevel) error {
	ctx, span := tracer.Start(ctx, "knowledge.SetPromotion")
	defer span.End()
	span.SetAttributes(
		attribute.String("path", path),
		attribute.String("level", string(level)),
	)

	if err := level.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	mu := s.pathLock(lockKey(tc, path))
	mu.Lock()
	defer mu.Unlock()

	collection := s.Collection(KindKnowledge)
	docID := DocumentID(tc, path)
	doc, err := s.store.Get(ctx, collection, docID)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}

	oldLevel := PromotionStandard
	if lvl, perr := ParsePromotionLevel(metaString(doc.Metadata, metaPromotion)); perr == nil {
		oldLevel = lvl
	}
	if oldLevel == level {
		s.rememberPromotion(docID, level)
		return nil
	}

	chunkCount := metaInt(doc.Metadata, metaChunkCount)
	originals := make([]vectorstore.Record, 0, chunkCount)
	updated := make([]vectorstore.Record, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		rec, gerr := s.store.Get(ctx, collection, ChunkID(tc, path, i))
		if gerr != nil {
			return fmt.Errorf("loading chunk %d of %s: %w", i, path, gerr)
		}
		originals = append(originals, *rec)
		up := *rec
		up.Metadata = mergeMeta(rec.Metadata, map[string]any{metaPromotion: string(level)})
		updated = append(updated, up)
	}

	// Flip the snapshot first: from here readers see the new level for the
	// document and all its chunks, whatever the rows say mid-rewrite.
	s.rememberPromotion(docID, level)

	rollback := func() {
		s.rememberPromotion(docID, oldLevel)
		if len(originals) > 0 {
			if rerr := s.store.Upsert(ctx, collection, originals); rerr != nil {
				s.logger.Error("promotion rollback failed",
					zap.String("path", path), zap.Error(rerr))
			}
		}
	}

	if len(updated) > 0 {
		if err := s.store.Upsert(ctx, collection, updated); err != nil {
			rollback()
			return fmt.Errorf("propagating promotion to chunks: %w", err)
		}
	}

	docUp := *doc
	docUp.Metadata = mergeMeta(doc.Metadata, map[string]any{metaPromotion: string(level)})
	if err := s.store.Upsert(ctx, collection, []vectorstore.Record{docUp}); err != nil {
		rollback()
		return fmt.Errorf("updating document promotion: %w", err)
	}

	s.logger.Info("promotion updated",
		zap.String("path", path),
		zap.String("from", string(oldLevel)),
		zap.String("to", string(level)),
		zap.Int("chunks", chunkCount),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes a document and all its chunks in one logical operation.
// Returns the number of records removed. Deleting an absent document is not
// an error.
func (s *Service) Delete(ctx context.Context, path, kind string) (int, error) {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}
	if kind == "" {
		kind = KindKnowledge
	}

	mu := s.pathLock(lockKey(tc, path))
	mu.Lock()
	defer mu.Unlock()

	collection := s.Collection(kind)
	docID := DocumentID(tc, path)
	doc, err := s.store.Get(ctx, collection, docID)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	chunkCount := metaInt(doc.Metadata, metaChunkCount)
	ids := make([]string, 0, chunkCount+1)
	for i := 0; i < chunkCount; i++ {
		ids = append(ids, ChunkID(tc, path, i))
	}
	ids = append(ids, docID)

	if err := s.store.Delete(ctx, collection, ids); err != nil {
		return 0, err
	}
	s.forgetPromotion(docID)
	s.logger.Info("document deleted", zap.String("path", path), zap.Int("records", len(ids)))
	return len(ids), nil
}

// DeleteScope removes every record inside a partial tenant scope across both
// collections, cascading documents and chunks alike. Returns the total
// number of records removed.
func (s *Service) DeleteScope(ctx context.Context, scope tenant.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	total := 0
	for _, kind := range []string{KindKnowledge, KindReference} {
		collection := s.Collection(kind)
		exists, err := s.store.CollectionExists(ctx, collection)
		if err != nil {
			return total, err
		}
		if !exists {
			continue
		}
		n, err := s.store.DeleteByScope(ctx, collection, scope, nil)
		if err != nil {
			return total, err
		}
		total += n
	}
	s.logger.Info("scope deleted",
		zap.String("project", scope.Project),
		zap.String("branch", scope.Branch),
		zap.Int("records", total),
	)
	return total, nil
}

// SearchFilters narrows a chunk search.
type SearchFilters struct {
	// DocType restricts hits to one document type.
	DocType string

	// Promotion restricts hits to one tier.
	Promotion PromotionLevel

	// Kind selects the collection. Default: KindKnowledge.
	Kind string

	// EfSearch overrides the store's query-time search depth.
	EfSearch int
}

// SearchChunks runs a similarity search over chunk records, annotating each
// hit with its parent document's attributes. Promotion comes from the
// snapshot so hits of one document always report one uniform level.
func (s *Service) SearchChunks(ctx context.Context, queryVector []float32, k int, f SearchFilters) ([]Hit, error) {
	kind := f.Kind
	if kind == "" {
		kind = KindKnowledge
	}
	filter := map[string]any{metaKind: kindChunk}
	if f.DocType != "" {
		filter[metaDocType] = f.DocType
	}
	if f.Promotion != "" {
		if err := f.Promotion.Validate(); err != nil {
			return nil, err
		}
		filter[metaPromotion] = string(f.Promotion)
	}

	results, err := s.store.Search(ctx, s.Collection(kind), queryVector, k, vectorstore.SearchOptions{
		Filter:   filter,
		EfSearch: f.EfSearch,
	})
	if err != nil {
		return nil, err
	}

	// Promotion is resolved once per document for the whole result set, so
	// a concurrent propagation can never annotate two chunks of the same
	// document at different levels within one response.
	resolved := make(map[string]PromotionLevel)
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, s.hitFromResult(r, resolved))
	}
	return hits, nil
}

func (s *Service) hitFromResult(r vectorstore.Result, resolved map[string]PromotionLevel) Hit {
	docID := metaString(r.Metadata, metaDocumentID)
	level, ok := resolved[docID]
	if !ok {
		fallback := PromotionStandard
		if lvl, err := ParsePromotionLevel(metaString(r.Metadata, metaPromotion)); err == nil {
			fallback = lvl
		}
		level = s.promotionFor(docID, fallback)
		resolved[docID] = level
	}
	updated, _ := time.Parse(time.RFC3339Nano, metaString(r.Metadata, metaUpdatedAt))
	return Hit{
		Chunk: Chunk{
			ID:         r.ID,
			DocumentID: docID,
			Path:       metaString(r.Metadata, metaPath),
			Promotion:  level,
			Index:      metaInt(r.Metadata, metaChunkIndex),
			HeaderPath: metaString(r.Metadata, metaHeaderPath),
			StartLine:  metaInt(r.Metadata, metaStartLine),
			EndLine:    metaInt(r.Metadata, metaEndLine),
			Content:    r.Content,
		},
		Score:     r.Score,
		Title:     metaString(r.Metadata, metaTitle),
		DocType:   metaString(r.Metadata, metaDocType),
		Promotion: level,
		UpdatedAt: updated,
	}
}

func (s *Service) documentFromRecord(tc tenant.Context, rec *vectorstore.Record) *Document {
	level := PromotionStandard
	if lvl, err := ParsePromotionLevel(metaString(rec.Metadata, metaPromotion)); err == nil {
		level = lvl
	}
	var frontmatter map[string]any
	if raw := metaString(rec.Metadata, metaFrontmatter); raw != "" {
		_ = json.Unmarshal([]byte(raw), &frontmatter)
	}
	updated, _ := time.Parse(time.RFC3339Nano, metaString(rec.Metadata, metaUpdatedAt))
	return &Document{
		ID:          rec.ID,
		Tenant:      tc,
		Path:        metaString(rec.Metadata, metaPath),
		Title:       metaString(rec.Metadata, metaTitle),
		Summary:     metaString(rec.Metadata, metaSummary),
		DocType:     metaString(rec.Metadata, metaDocType),
		Promotion:   s.promotionFor(rec.ID, level),
		ContentHash: metaString(rec.Metadata, metaContentHash),
		CharCount:   metaInt(rec.Metadata, metaCharCount),
		ChunkCount:  metaInt(rec.Metadata, metaChunkCount),
		Frontmatter: frontmatter,
		UpdatedAt:   updated,
	}
}

// promotionFor resolves a document's promotion from the snapshot, falling
// back to the stored row value when the snapshot has no entry (documents
// indexed by a previous process).
func (s *Service) promotionFor(docID string, fallback PromotionLevel) PromotionLevel {
	s.promoMu.RLock()
	defer s.promoMu.RUnlock()
	if lvl, ok := s.promotions[docID]; ok {
		return lvl
	}
	return fallback
}

func (s *Service) rememberPromotion(docID string, level PromotionLevel) {
	s.promoMu.Lock()
	s.promotions[docID] = level
	s.promoMu.Unlock()
}

func (s *Service) forgetPromotion(docID string) {
	s.promoMu.Lock()
	delete(s.promotions, docID)
	s.promoMu.Unlock()
}

func (s *Service) pathLock(key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func lockKey(tc tenant.Context, path string) string {
	return tc.Project + "|" + tc.Branch + "|" + tc.WorkspaceHash + "|" + path
}

func isNotFound(err error) bool {
	return errors.Is(err, vectorstore.ErrNotFound) || errors.Is(err, vectorstore.ErrCollectionNotFound)
}

func mergeMeta(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// metaString reads a string metadata value.
func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// metaInt reads an integer metadata value, tolerating the widened types the
// store backends round-trip through.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
