package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("knowledged.vectorstore.qdrant")

// HNSWConfig tunes the Qdrant HNSW index.
type HNSWConfig struct {
	// M is the number of graph edges per node. Higher improves recall at
	// the cost of memory and build time. Default: 16.
	M uint64

	// EfConstruct is the build-time search depth. Default: 128.
	EfConstruct uint64

	// EfSearch is the default query-time search depth. Overridable per
	// query via SearchOptions.EfSearch. Default: 96.
	EfSearch uint64
}

// ApplyDefaults sets defaults for unset fields.
func (c *HNSWConfig) ApplyDefaults() {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfConstruct == 0 {
		c.EfConstruct = 128
	}
	if c.EfSearch == 0 {
		c.EfSearch = 96
	}
}

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), NOT the HTTP REST port (6333).
	Port int

	// Dimension is the embedding dimensionality. Must match the embedding
	// provider's output.
	Dimension int

	// Distance is the similarity metric. Default: Cosine.
	Distance qdrant.Distance

	// HNSW tunes index construction and query-time search depth.
	HNSW HNSWConfig

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries bounds retry attempts for transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry. Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize is the gRPC message size limit in bytes. Default 50MB
	// so large documents index in one batch.
	MaxMessageSize int

	// Isolation selects the tenant isolation mode. Defaults to payload.
	Isolation IsolationMode
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
	if c.Isolation == "" {
		c.Isolation = IsolationPayload
	}
	c.HNSW.ApplyDefaults()
}

// IsTransientError reports whether a gRPC error should be retried.
// Unavailable, deadline exceeded, aborted and resource exhausted are
// transient; invalid argument, not found and auth failures are permanent.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// gRPC transport (port 6334) avoids the HTTP layer's payload limit, so whole
// documents upsert in one batch. Vectors are precomputed by the caller;
// the store never embeds.
type QdrantStore struct {
	client  *qdrant.Client
	config  QdrantConfig
	iso     *isolation
	logger  *zap.Logger
	metrics *Metrics

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map
}

// NewQdrantStore creates a QdrantStore and verifies connectivity.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	iso, err := newIsolation(cfg.Isolation)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to qdrant at %s:%d: %v", ErrUnavailable, cfg.Host, cfg.Port, err)
	}

	store := &QdrantStore{
		client:  client,
		config:  cfg,
		iso:     iso,
		logger:  logger,
		metrics: NewMetrics("qdrant"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.healthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("dimension", cfg.Dimension),
		zap.Bool("tls", cfg.UseTLS),
	)
	return store, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Dimension returns the configured embedding dimensionality.
func (s *QdrantStore) Dimension() int {
	return s.config.Dimension
}

func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff. Transient
// exhaustion maps to ErrUnavailable so callers can distinguish outage from
// caller error.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%w: %s failed after %d retries: %v", ErrUnavailable, operationName, s.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// EnsureCollection creates the collection with the configured vector and
// HNSW parameters if it does not exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if exists {
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.config.Dimension),
				Distance: s.config.Distance,
			}),
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           qdrant.PtrOf(s.config.HNSW.M),
				EfConstruct: qdrant.PtrOf(s.config.HNSW.EfConstruct),
			},
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.collections.Store(name, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteCollection deletes a collection and all its records.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	err := s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	s.collections.Delete(name)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CollectionExists")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return false, err
	}
	if _, ok := s.collections.Load(name); ok {
		return true, nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		ok, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		s.collections.Store(name, true)
	}
	return exists, nil
}

// Upsert writes records with tenant metadata injected. Writes wait for
// commit so a successful return means subsequent reads see the new state.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, recs []Record) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("record_count", len(recs)),
	)
	done := s.metrics.start(ctx, "upsert", collection)
	err := s.upsert(ctx, collection, recs)
	done(err, len(recs))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (s *QdrantStore) upsert(ctx context.Context, collection string, recs []Record) error {
	if len(recs) == 0 {
		return ErrEmptyRecords
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(recs))
	for _, r := range recs {
		if r.ID == "" {
			return fmt.Errorf("%w: record missing id", ErrInvalidEntity)
		}
		if len(r.Vector) != s.config.Dimension {
			return fmt.Errorf("%w: vector dimension %d, want %d (id=%s)",
				ErrInvalidEntity, len(r.Vector), s.config.Dimension, r.ID)
		}
		meta, err := s.iso.tenantMetadata(ctx, r.Metadata)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEntity, err)
		}

		payload := make(map[string]*qdrant.Value, len(meta)+2)
		payload["content"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: r.Content}}
		payload["id"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: r.ID}}
		for k, v := range meta {
			if pv := payloadValue(v); pv != nil {
				payload[k] = pv
			}
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: payload,
		})
	}

	return s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
}

// Get fetches a record by ID. Records outside the tenant scope report
// ErrNotFound.
func (s *QdrantStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Get")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "get", func() error {
		res, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get %s from %s: %w", id, collection, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec := pointToRecord(points[0])
	if !s.iso.belongsTo(ctx, rec.Metadata) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Delete removes records by ID, constrained to the caller's tenant: the
// delete filter combines the point IDs with the tenant predicate so a caller
// can never delete another tenant's rows.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	where, err := s.iso.tenantFilter(ctx, nil)
	if err != nil {
		return err
	}

	conditions := buildConditions(where)
	conditions = append(conditions, &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: "id",
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: ids},
					},
				},
			},
		},
	})

	err = s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{Must: conditions},
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByFilter removes all records matching filter within the caller's
// tenant. The count is measured with a filtered Count before deletion.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) (int, error) {
	where, err := s.iso.tenantFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	return s.deleteWhere(ctx, collection, where)
}

// DeleteByScope removes all records inside a partial tenant scope.
func (s *QdrantStore) DeleteByScope(ctx context.Context, collection string, scope tenant.Scope, filter map[string]any) (int, error) {
	where, err := s.iso.scopeFilter(ctx, scope, filter)
	if err != nil {
		return 0, err
	}
	return s.deleteWhere(ctx, collection, where)
}

func (s *QdrantStore) deleteWhere(ctx context.Context, collection string, where map[string]any) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByFilter")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}
	qf := &qdrant.Filter{Must: buildConditions(where)}

	var matched uint64
	err := s.retryOperation(ctx, "count", func() error {
		n, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Filter:         qf,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		matched = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("count matching records in %s: %w", collection, err)
	}
	if matched == 0 {
		return 0, nil
	}

	err = s.retryOperation(ctx, "delete_by_filter", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qf},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("delete by filter from %s: %w", collection, err)
	}
	span.SetAttributes(attribute.Int("deleted", int(matched)))
	span.SetStatus(codes.Ok, "success")
	return int(matched), nil
}

// Search performs HNSW similarity search with the tenant predicate applied
// as a pre-filter, never as a post-filter on the top-k.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)
	done := s.metrics.start(ctx, "search", collection)
	res, err := s.search(ctx, collection, vector, k, opts)
	done(err, len(res))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results_count", len(res)))
	span.SetStatus(codes.Ok, "success")
	return res, nil
}

func (s *QdrantStore) search(ctx context.Context, collection string, vector []float32, k int, opts SearchOptions) ([]Result, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: query vector dimension %d, want %d",
			ErrInvalidEntity, len(vector), s.config.Dimension)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidEntity)
	}

	where, err := s.iso.tenantFilter(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}

	ef := s.config.HNSW.EfSearch
	if opts.EfSearch > 0 {
		ef = uint64(opts.EfSearch)
	}

	var hits []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         &qdrant.Filter{Must: buildConditions(where)},
			Params: &qdrant.SearchParams{
				HnswEf: qdrant.PtrOf(ef),
			},
		})
		if err != nil {
			return err
		}
		hits = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", collection, err)
	}

	results := make([]Result, 0, len(hits))
	for _, point := range hits {
		results = append(results, scoredPointToResult(point))
	}
	return results, nil
}

// Count returns the total record count for a collection.
func (s *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}
	var n uint64
	err := s.retryOperation(ctx, "count", func() error {
		count, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: collection,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		n = count
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return int(n), nil
}

// Maintain re-applies the HNSW parameters, triggering a background optimizer
// pass. Qdrant rebuilds segments off the serving path; concurrent searches
// see the old index until the swap.
func (s *QdrantStore) Maintain(ctx context.Context, collection string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Maintain")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	err := s.retryOperation(ctx, "maintain", func() error {
		return s.client.UpdateCollection(ctx, &qdrant.UpdateCollection{
			CollectionName: collection,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           qdrant.PtrOf(s.config.HNSW.M),
				EfConstruct: qdrant.PtrOf(s.config.HNSW.EfConstruct),
			},
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("maintain %s: %w", collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// buildConditions converts a filter map to Qdrant match conditions.
func buildConditions(filter map[string]any) []*qdrant.Condition {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		var match *qdrant.Match
		switch v := value.(type) {
		case string:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
		case int:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
		case int64:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
		case bool:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
		default:
			match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprint(v)}}
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: key, Match: match},
			},
		})
	}
	return conditions
}

// payloadValue converts a metadata value to a Qdrant payload value.
// Unsupported types are dropped rather than stringified silently.
func payloadValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return nil
	}
}

// payloadToMeta extracts metadata, content and the original record ID from a
// point payload.
func payloadToMeta(payload map[string]*qdrant.Value) (meta map[string]any, content, id string) {
	meta = make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			switch k {
			case "content":
				content = val.StringValue
			case "id":
				id = val.StringValue
			default:
				meta[k] = val.StringValue
			}
		case *qdrant.Value_IntegerValue:
			meta[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			meta[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			meta[k] = val.BoolValue
		}
	}
	return meta, content, id
}

func pointToRecord(point *qdrant.RetrievedPoint) *Record {
	meta, content, id := payloadToMeta(point.Payload)
	rec := &Record{ID: id, Content: content, Metadata: meta}
	if v := point.Vectors.GetVector(); v != nil {
		rec.Vector = v.Data
	}
	return rec
}

func scoredPointToResult(point *qdrant.ScoredPoint) Result {
	meta, content, id := payloadToMeta(point.Payload)
	return Result{
		ID:       id,
		Content:  content,
		Score:    point.Score,
		Metadata: meta,
	}
}

// Ensure both implementations satisfy Store.
var (
	_ Store = (*QdrantStore)(nil)
	_ Store = (*ChromemStore)(nil)
)
