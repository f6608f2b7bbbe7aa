// Package retrieval combines similarity search with promotion-weighted
// ranking: plain similarity search for "find documents" use cases, and
// two-tier context assembly where pinned documents are included
// unconditionally up to a cap and remaining slots fill by similarity above a
// minimum cutoff.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
)

var tracer = otel.Tracer("knowledged.retrieval")

// Config tunes retrieval behavior.
type Config struct {
	// DefaultLimit is the result count when a request does not set one.
	DefaultLimit int

	// MaxLimit caps requested result counts to prevent resource
	// exhaustion.
	MaxLimit int

	// MinSimilarity excludes matches below this score from context
	// assembly. Plain search is not cut off.
	MinSimilarity float32

	// PinnedCap bounds how many pinned sources are included
	// unconditionally per query.
	PinnedCap int

	// CandidateFactor over-fetches candidates relative to the requested
	// limit so per-document dedup still fills the result set.
	CandidateFactor int
}

// ApplyDefaults sets defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 10
	}
	if c.MaxLimit == 0 {
		c.MaxLimit = 50
	}
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.25
	}
	if c.PinnedCap == 0 {
		c.PinnedCap = 3
	}
	if c.CandidateFactor == 0 {
		c.CandidateFactor = 4
	}
}

// Service implements retrieval and ranking over the knowledge store.
type Service struct {
	provider  embeddings.Provider
	knowledge *knowledge.Service
	config    Config
	logger    *zap.Logger
}

// NewService creates a retrieval service.
func NewService(cfg Config, kn *knowledge.Service, provider embeddings.Provider, logger *zap.Logger) (*Service, error) {
	if kn == nil {
		return nil, fmt.Errorf("knowledge service is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.ApplyDefaults()
	return &Service{
		provider:  provider,
		knowledge: kn,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Source is a ranked retrieval result: the best-scoring chunk of a document,
// annotated with the document's attributes.
type Source struct {
	Path       string
	Title      string
	DocType    string
	Promotion  knowledge.PromotionLevel
	Score      float32
	HeaderPath string
	Content    string
	UpdatedAt  time.Time
}

// SearchRequest is a similarity search.
type SearchRequest struct {
	Query string

	// Limit bounds results. Clamped to [1, MaxLimit]; 0 uses the default.
	Limit int

	// DocType optionally restricts results to one document type.
	DocType string

	// Promotion optionally restricts results to one tier.
	Promotion knowledge.PromotionLevel

	// Kind selects the collection. Default: knowledge.
	Kind string

	// EfSearch overrides query-time ANN search depth.
	EfSearch int
}

// Search embeds the query and returns results ordered purely by similarity,
// deduplicated to the best chunk per document.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Source, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer span.End()

	limit := s.clampLimit(req.Limit)
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("query_chars", len(req.Query)),
	)

	vector, err := s.provider.EmbedQuery(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits, err := s.knowledge.SearchChunks(ctx, vector, limit*s.config.CandidateFactor, knowledge.SearchFilters{
		DocType:   req.DocType,
		Promotion: req.Promotion,
		Kind:      req.Kind,
		EfSearch:  req.EfSearch,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sources := dedupeByDocument(hits)
	sortBySimilarity(sources)
	if len(sources) > limit {
		sources = sources[:limit]
	}
	span.SetAttributes(attribute.Int("results", len(sources)))
	span.SetStatus(codes.Ok, "success")
	return sources, nil
}

// QueryRequest is a context-assembly query.
type QueryRequest struct {
	Query string

	// MaxSources bounds the assembled source list. Clamped like Limit.
	MaxSources int

	// IncludeTopTier unconditionally includes pinned documents up to the
	// configured cap, regardless of their similarity to the query.
	IncludeTopTier bool

	// EfSearch overrides query-time ANN search depth.
	EfSearch int
}

// QueryResult is an ordered source list plus the concatenated context for
// downstream synthesis.
type QueryResult struct {
	Sources []Source
	Context string
}

// Query embeds the query and assembles context with two-tier ranking: pinned
// sources first (when requested), then best similarity above the cutoff.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Query")
	defer span.End()

	limit := s.clampLimit(req.MaxSources)
	span.SetAttributes(
		attribute.Int("max_sources", limit),
		attribute.Bool("include_top_tier", req.IncludeTopTier),
	)

	vector, err := s.provider.EmbedQuery(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits, err := s.knowledge.SearchChunks(ctx, vector, limit*s.config.CandidateFactor, knowledge.SearchFilters{
		EfSearch: req.EfSearch,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	candidates := dedupeByDocument(hits)

	var pinned []Source
	if req.IncludeTopTier {
		// Pinned documents may be dissimilar to the query and missing
		// from the candidate set entirely, so they are fetched by tier.
		pinnedHits, err := s.knowledge.SearchChunks(ctx, vector, s.config.PinnedCap*s.config.CandidateFactor, knowledge.SearchFilters{
			Promotion: knowledge.PromotionPinned,
			EfSearch:  req.EfSearch,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		pinned = dedupeByDocument(pinnedHits)
		sortBySimilarity(pinned)
		if len(pinned) > s.config.PinnedCap {
			pinned = pinned[:s.config.PinnedCap]
		}
		if len(pinned) > limit {
			pinned = pinned[:limit]
		}
	}

	taken := make(map[string]bool, len(pinned))
	for _, src := range pinned {
		taken[src.Path] = true
	}

	rest := make([]Source, 0, len(candidates))
	for _, src := range candidates {
		if taken[src.Path] {
			continue
		}
		if src.Score < s.config.MinSimilarity {
			continue
		}
		rest = append(rest, src)
	}
	sortBySimilarity(rest)

	sources := pinned
	for _, src := range rest {
		if len(sources) >= limit {
			break
		}
		sources = append(sources, src)
	}

	span.SetAttributes(attribute.Int("sources", len(sources)))
	span.SetStatus(codes.Ok, "success")
	return &QueryResult{
		Sources: sources,
		Context: assembleContext(sources),
	}, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		return s.config.MaxLimit
	}
	return limit
}

// dedupeByDocument keeps the best-scoring chunk per document path.
func dedupeByDocument(hits []knowledge.Hit) []Source {
	best := make(map[string]Source, len(hits))
	for _, h := range hits {
		src := Source{
			Path:       h.Chunk.Path,
			Title:      h.Title,
			DocType:    h.DocType,
			Promotion:  h.Promotion,
			Score:      h.Score,
			HeaderPath: h.Chunk.HeaderPath,
			Content:    h.Chunk.Content,
			UpdatedAt:  h.UpdatedAt,
		}
		if prev, ok := best[src.Path]; !ok || src.Score > prev.Score {
			best[src.Path] = src
		}
	}
	out := make([]Source, 0, len(best))
	for _, src := range best {
		out = append(out, src)
	}
	return out
}

// sortBySimilarity orders by descending score; equal scores break by
// promotion tier (higher wins), then by most-recent update, then by path for
// determinism.
func sortBySimilarity(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		a, b := sources[i], sources[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Promotion.Rank() != b.Promotion.Rank() {
			return a.Promotion.Rank() > b.Promotion.Rank()
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.Path < b.Path
	})
}

// assembleContext concatenates sources for downstream synthesis.
func assembleContext(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	for i, src := range sources {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "## %s (%s)\n", src.Title, src.Path)
		if src.HeaderPath != "" {
			fmt.Fprintf(&b, "### %s\n", src.HeaderPath)
		}
		b.WriteString(src.Content)
	}
	return b.String()
}
