package knowledge

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Knowledge service errors.
var (
	// ErrNotFound is returned when a document is absent.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidLevel is returned for an unknown promotion level.
	ErrInvalidLevel = errors.New("invalid promotion level")

	// ErrInvalidRequest is returned for malformed index or lookup requests.
	ErrInvalidRequest = errors.New("invalid request")
)

// PromotionLevel is a document's priority tier. Ordering matters: ranking
// compares tiers by Rank, not by label.
type PromotionLevel string

const (
	// PromotionStandard is the default tier for newly indexed documents.
	PromotionStandard PromotionLevel = "standard"

	// PromotionElevated boosts a document above standard in ties.
	PromotionElevated PromotionLevel = "elevated"

	// PromotionPinned is the top tier: unconditionally included in context
	// assembly up to the configured cap.
	PromotionPinned PromotionLevel = "pinned"
)

// Rank returns the ordering weight of a level. Higher wins.
func (p PromotionLevel) Rank() int {
	switch p {
	case PromotionPinned:
		return 2
	case PromotionElevated:
		return 1
	default:
		return 0
	}
}

// Validate checks that the level is one of the known tiers.
func (p PromotionLevel) Validate() error {
	switch p {
	case PromotionStandard, PromotionElevated, PromotionPinned:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLevel, string(p))
	}
}

// ParsePromotionLevel parses a level label.
func ParsePromotionLevel(s string) (PromotionLevel, error) {
	p := PromotionLevel(s)
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Collection kinds. Institutional knowledge and read-only reference material
// live in separate collections so neither can surface in retrieval meant for
// the other.
const (
	KindKnowledge = "knowledge"
	KindReference = "reference"
)

// Document is an indexed text document scoped to a tenant.
type Document struct {
	ID          string
	Tenant      tenant.Context
	Path        string
	Title       string
	Summary     string
	DocType     string
	Promotion   PromotionLevel
	ContentHash string
	CharCount   int
	ChunkCount  int
	Frontmatter map[string]any
	UpdatedAt   time.Time
}

// Chunk is a contiguous, header-bounded slice of a document, independently
// embedded. Tenant and promotion are denormalized from the parent and always
// rewritten in the same operation as the parent's values.
type Chunk struct {
	ID         string
	DocumentID string
	Path       string
	Promotion  PromotionLevel
	Index      int
	HeaderPath string
	StartLine  int
	EndLine    int
	Content    string
}

// Hit is a chunk-level similarity result annotated with its parent document's
// attributes. Promotion is resolved from the service's snapshot, so a reader
// never sees a document and its chunks at different levels.
type Hit struct {
	Chunk     Chunk
	Score     float32
	Title     string
	DocType   string
	Promotion PromotionLevel
	UpdatedAt time.Time
}

// Metadata keys shared by document and chunk records.
const (
	metaKind        = "kind"
	metaPath        = "path"
	metaTitle       = "title"
	metaSummary     = "summary"
	metaDocType     = "doc_type"
	metaPromotion   = "promotion"
	metaContentHash = "content_hash"
	metaCharCount   = "char_count"
	metaChunkCount  = "chunk_count"
	metaFrontmatter = "frontmatter"
	metaDocumentID  = "document_id"
	metaChunkIndex  = "chunk_index"
	metaHeaderPath  = "header_path"
	metaStartLine   = "start_line"
	metaEndLine     = "end_line"
	metaUpdatedAt   = "updated_at"

	kindDocument = "document"
	kindChunk    = "chunk"
)
