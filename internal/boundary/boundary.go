// Package boundary is the validation and isolation gate in front of the
// document store. Every externally supplied value is validated here before it
// reaches indexing, retrieval or storage: paths, limits, frontmatter, and the
// tenant session state. Errors crossing outward are classified into the
// stable code taxonomy.
package boundary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/gitutil"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/sanitize"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Config bounds externally supplied values.
type Config struct {
	// MaxContentBytes caps a single document submission.
	MaxContentBytes int

	// MaxQueryChars caps search and query strings.
	MaxQueryChars int
}

// ApplyDefaults sets defaults for missing fields.
func (c *Config) ApplyDefaults() {
	if c.MaxContentBytes == 0 {
		c.MaxContentBytes = 1024 * 1024
	}
	if c.MaxQueryChars == 0 {
		c.MaxQueryChars = 10_000
	}
}

// Service is the boundary gate. All operations require an activated session
// except Activate and Status.
type Service struct {
	session   *Session
	knowledge *knowledge.Service
	retrieval *retrieval.Service
	logger    *zap.Logger
	config    Config

	mu   sync.RWMutex
	root string
}

// NewService creates the boundary gate over the given services.
func NewService(cfg Config, kn *knowledge.Service, rt *retrieval.Service, logger *zap.Logger) *Service {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		session:   NewSession(),
		knowledge: kn,
		retrieval: rt,
		logger:    logger.Named("boundary"),
		config:    cfg,
	}
}

// Session exposes the underlying session, for serving transports that manage
// lifecycle directly.
func (s *Service) Session() *Session {
	return s.session
}

// ActivateRequest selects the project to operate on.
type ActivateRequest struct {
	// ConfigPath is the project config file, or a directory containing
	// one.
	ConfigPath string

	// Branch overrides git branch detection when set.
	Branch string
}

// ActivateResult reports the established tenant.
type ActivateResult struct {
	Project       string `json:"project"`
	Branch        string `json:"branch"`
	WorkspaceHash string `json:"workspace_hash"`
}

// Activate loads the project config, resolves the tenant key and replaces
// any previously active session tenant.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*ActivateResult, error) {
	project, err := config.LoadProject(req.ConfigPath)
	if err != nil {
		return nil, Classify(err)
	}

	branch := req.Branch
	if branch == "" {
		detected, err := gitutil.DetectBranch(project.Root)
		if err != nil {
			s.logger.Debug("branch detection failed, using default",
				zap.String("default_branch", project.DefaultBranch),
				zap.Error(err))
			detected = project.DefaultBranch
		}
		branch = detected
	}

	tc := tenant.Context{
		Project:       sanitize.Identifier(project.Name),
		Branch:        sanitize.Identifier(branch),
		WorkspaceHash: workspaceHash(project.Root),
	}
	if err := s.session.Activate(tc); err != nil {
		return nil, Classify(err)
	}

	s.mu.Lock()
	s.root = project.Root
	s.mu.Unlock()

	if err := s.ensureCollections(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("session activated",
		zap.String("project", tc.Project),
		zap.String("branch", tc.Branch),
		zap.String("workspace_hash", tc.WorkspaceHash))

	return &ActivateResult{
		Project:       tc.Project,
		Branch:        tc.Branch,
		WorkspaceHash: tc.WorkspaceHash,
	}, nil
}

func (s *Service) ensureCollections(ctx context.Context) error {
	tctx, err := s.session.Context(ctx)
	if err != nil {
		return Classify(err)
	}
	if err := s.knowledge.EnsureCollections(tctx); err != nil {
		return Classify(err)
	}
	return nil
}

// Deactivate drops the session tenant.
func (s *Service) Deactivate() {
	s.session.Deactivate()
	s.mu.Lock()
	s.root = ""
	s.mu.Unlock()
	s.logger.Info("session deactivated")
}

// Status reports the current session state without requiring activation.
func (s *Service) Status() (*ActivateResult, bool) {
	tc, ok := s.session.Tenant()
	if !ok {
		return nil, false
	}
	return &ActivateResult{
		Project:       tc.Project,
		Branch:        tc.Branch,
		WorkspaceHash: tc.WorkspaceHash,
	}, true
}

// IndexRequest submits one document for indexing.
type IndexRequest struct {
	Path        string
	Content     string
	Title       string
	Summary     string
	DocType     string
	Frontmatter map[string]any

	// Kind selects the collection: knowledge (default) or reference.
	Kind string
}

// Index validates and indexes a document. Unchanged content (same hash) is a
// no-op reported through the result.
func (s *Service) Index(ctx context.Context, req IndexRequest) (*knowledge.IndexResult, error) {
	tctx, err := s.session.Context(ctx)
	if err != nil {
		return nil, Classify(err)
	}

	path, err := s.validatePath(req.Path)
	if err != nil {
		return nil, err
	}
	if req.Content == "" {
		return nil, NewError(CodeValidation, "content is required", nil)
	}
	if len(req.Content) > s.config.MaxContentBytes {
		return nil, NewError(CodeValidation,
			fmt.Sprintf("content too large: %d bytes (max %d)", len(req.Content), s.config.MaxContentBytes), nil)
	}
	if err := ValidateFrontmatter(req.DocType, req.Frontmatter); err != nil {
		return nil, NewError(CodeValidation, err.Error(), err)
	}

	result, err := s.knowledge.Index(tctx, knowledge.IndexRequest{
		Path:        path,
		Content:     req.Content,
		Title:       req.Title,
		Summary:     req.Summary,
		DocType:     req.DocType,
		Frontmatter: req.Frontmatter,
		Kind:        req.Kind,
	})
	if err != nil {
		return nil, Classify(err)
	}
	return result, nil
}

// SearchRequest is a similarity search across the active tenant's documents.
type SearchRequest struct {
	Query     string
	Limit     int
	DocType   string
	Promotion string
	Kind      string
}

// Search validates and runs a similarity search.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]retrieval.Source, error) {
	tctx, err := s.session.Context(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	if err := s.validateQuery(req.Query); err != nil {
		return nil, err
	}

	var promotion knowledge.PromotionLevel
	if req.Promotion != "" {
		promotion, err = knowledge.ParsePromotionLevel(req.Promotion)
		if err != nil {
			return nil, Classify(err)
		}
	}

	sources, err := s.retrieval.Search(tctx, retrieval.SearchRequest{
		Query:     req.Query,
		Limit:     req.Limit,
		DocType:   req.DocType,
		Promotion: promotion,
		Kind:      req.Kind,
	})
	if err != nil {
		return nil, Classify(err)
	}
	return sources, nil
}

// QueryRequest assembles retrieval context for a question.
type QueryRequest struct {
	Query          string
	MaxSources     int
	IncludeTopTier bool
}

// Query validates and runs context assembly.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*retrieval.QueryResult, error) {
	tctx, err := s.session.Context(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	if err := s.validateQuery(req.Query); err != nil {
		return nil, err
	}

	result, err := s.retrieval.Query(tctx, retrieval.QueryRequest{
		Query:          req.Query,
		MaxSources:     req.MaxSources,
		IncludeTopTier: req.IncludeTopTier,
	})
	if err != nil {
		return nil, Classify(err)
	}
	return result, nil
}

// SetPromotion changes a document's promotion level, propagating to all its
// chunks atomically.
func (s *Service) SetPromotion(ctx context.Context, path, level string) error {
	tctx, err := s.session.Context(ctx)
	if err != nil {
		return Classify(err)
	}
	cleaned, err := s.validatePath(path)
	if err != nil {
		return err
	}
	parsed, err := knowledge.ParsePromotionLevel(level)
	if err != nil {
		return Classify(err)
	}
	if err := s.knowledge.SetPromotion(tctx, cleaned, parsed); err != nil {
		return Classify(err)
	}
	return nil
}

// DeleteRequest selects what to delete. A non-empty Path deletes one document
// with its chunks; otherwise the active tenant's scope is deleted, optionally
// widened across branches or workspaces.
type DeleteRequest struct {
	Path string
	Kind string

	// AllBranches widens a scope delete to every branch of the project.
	AllBranches bool

	// AllWorkspaces widens a scope delete to every working copy.
	AllWorkspaces bool
}

// Delete removes documents and returns the number of rows deleted. Deleting
// an absent document is a no-op reporting zero.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (int, error) {
	tctx, err := s.session.Context(ctx)
	if err != nil {
		return 0, Classify(err)
	}

	if req.Path != "" {
		path, err := s.validatePath(req.Path)
		if err != nil {
			return 0, err
		}
		n, err := s.knowledge.Delete(tctx, path, req.Kind)
		if err != nil {
			return 0, Classify(err)
		}
		return n, nil
	}

	tc, _ := s.session.Tenant()
	scope := tenant.Scope{Project: tc.Project, Branch: tc.Branch, WorkspaceHash: tc.WorkspaceHash}
	if req.AllBranches {
		scope.Branch = ""
		scope.WorkspaceHash = ""
	}
	if req.AllWorkspaces {
		scope.WorkspaceHash = ""
	}
	n, err := s.knowledge.DeleteScope(tctx, scope)
	if err != nil {
		return 0, Classify(err)
	}
	return n, nil
}

// validatePath applies the full path-safety corpus and confines the path
// under the project root.
func (s *Service) validatePath(path string) (string, error) {
	cleaned, err := sanitize.ValidateRelativePath(path)
	if err != nil {
		return "", Classify(err)
	}
	s.mu.RLock()
	root := s.root
	s.mu.RUnlock()
	if root != "" {
		if _, err := sanitize.ResolveUnderRoot(root, cleaned); err != nil {
			return "", Classify(err)
		}
	}
	return cleaned, nil
}

func (s *Service) validateQuery(query string) error {
	if query == "" {
		return NewError(CodeValidation, "query is required", nil)
	}
	if len(query) > s.config.MaxQueryChars {
		return NewError(CodeValidation,
			fmt.Sprintf("query too long: %d chars (max %d)", len(query), s.config.MaxQueryChars), nil)
	}
	return nil
}

// workspaceHash derives the working-copy component of the tenant key from
// the absolute project root.
func workspaceHash(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:12]
}
