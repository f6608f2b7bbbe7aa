package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/boundary"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
)

type activateInput struct {
	ConfigPath string `json:"config_path" jsonschema:"Path to the project config file or the project directory containing .knowledged.yaml"`
	Branch     string `json:"branch,omitempty" jsonschema:"Branch override. When empty the branch is detected from .git/HEAD"`
}

type activateOutput struct {
	Project       string `json:"project"`
	Branch        string `json:"branch"`
	WorkspaceHash string `json:"workspace_hash"`
}

type indexInput struct {
	Path        string         `json:"path" jsonschema:"required,Relative document path inside the project"`
	Content     string         `json:"content" jsonschema:"required,Full document content"`
	Title       string         `json:"title,omitempty" jsonschema:"Document title"`
	Summary     string         `json:"summary,omitempty" jsonschema:"Short document summary"`
	DocType     string         `json:"doc_type,omitempty" jsonschema:"Document type, e.g. decision, problem, style"`
	Frontmatter map[string]any `json:"frontmatter,omitempty" jsonschema:"Frontmatter key/value pairs; required keys depend on doc_type"`
	Kind        string         `json:"kind,omitempty" jsonschema:"Collection kind: knowledge (default) or reference"`
}

type indexOutput struct {
	DocumentID  string `json:"document_id"`
	ContentHash string `json:"content_hash"`
	ChunkCount  int    `json:"chunk_count"`
	Unchanged   bool   `json:"unchanged"`
}

type searchInput struct {
	Query     string `json:"query" jsonschema:"required,Search text"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum results; clamped to the configured maximum"`
	DocType   string `json:"doc_type,omitempty" jsonschema:"Restrict results to one document type"`
	Promotion string `json:"promotion,omitempty" jsonschema:"Restrict results to one promotion level: standard, elevated or pinned"`
	Kind      string `json:"kind,omitempty" jsonschema:"Collection kind: knowledge (default) or reference"`
}

type searchResult struct {
	Path       string  `json:"path"`
	Title      string  `json:"title,omitempty"`
	DocType    string  `json:"doc_type,omitempty"`
	Promotion  string  `json:"promotion"`
	Score      float32 `json:"score"`
	HeaderPath string  `json:"header_path,omitempty"`
	Content    string  `json:"content"`
	UpdatedAt  string  `json:"updated_at,omitempty"`
}

type searchOutput struct {
	Results []searchResult `json:"results"`
	Count   int            `json:"count"`
}

type queryInput struct {
	Query          string `json:"query" jsonschema:"required,Question to assemble context for"`
	MaxSources     int    `json:"max_sources,omitempty" jsonschema:"Maximum sources in the assembled context"`
	IncludeTopTier bool   `json:"include_top_tier,omitempty" jsonschema:"Include pinned documents regardless of similarity, up to the configured cap"`
}

type queryOutput struct {
	Sources []searchResult `json:"sources"`
	Context string         `json:"context"`
}

type setPromotionInput struct {
	Path  string `json:"path" jsonschema:"required,Relative document path"`
	Level string `json:"level" jsonschema:"required,Promotion level: standard, elevated or pinned"`
}

type setPromotionOutput struct {
	Path  string `json:"path"`
	Level string `json:"level"`
}

type deleteInput struct {
	Path          string `json:"path,omitempty" jsonschema:"Relative document path. Empty deletes the active tenant scope"`
	Kind          string `json:"kind,omitempty" jsonschema:"Collection kind: knowledge (default) or reference"`
	AllBranches   bool   `json:"all_branches,omitempty" jsonschema:"Widen a scope delete to every branch of the project"`
	AllWorkspaces bool   `json:"all_workspaces,omitempty" jsonschema:"Widen a scope delete to every working copy"`
}

type deleteOutput struct {
	Deleted int `json:"deleted"`
}

type statusInput struct{}

type statusOutput struct {
	Active        bool   `json:"active"`
	Project       string `json:"project,omitempty"`
	Branch        string `json:"branch,omitempty"`
	WorkspaceHash string `json:"workspace_hash,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "activate",
		Description: "Activate a project for this session. Resolves the tenant from the project config and git branch. Must be called before any other tool.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args activateInput) (*mcp.CallToolResult, activateOutput, error) {
		res, err := s.gate.Activate(ctx, boundary.ActivateRequest{
			ConfigPath: args.ConfigPath,
			Branch:     args.Branch,
		})
		if err != nil {
			return nil, activateOutput{}, err
		}
		return nil, activateOutput{
			Project:       res.Project,
			Branch:        res.Branch,
			WorkspaceHash: res.WorkspaceHash,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index",
		Description: "Index a document: chunk it, embed the chunks and store them under the active tenant. Idempotent for unchanged content.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args indexInput) (*mcp.CallToolResult, indexOutput, error) {
		res, err := s.gate.Index(ctx, boundary.IndexRequest{
			Path:        args.Path,
			Content:     args.Content,
			Title:       args.Title,
			Summary:     args.Summary,
			DocType:     args.DocType,
			Frontmatter: args.Frontmatter,
			Kind:        args.Kind,
		})
		if err != nil {
			return nil, indexOutput{}, err
		}
		s.logger.Debug("indexed via mcp",
			zap.String("path", args.Path),
			zap.Int("chunks", res.ChunkCount),
			zap.Bool("unchanged", res.Unchanged))
		return nil, indexOutput{
			DocumentID:  res.DocumentID,
			ContentHash: res.ContentHash,
			ChunkCount:  res.ChunkCount,
			Unchanged:   res.Unchanged,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the active tenant's documents by similarity. Results are ordered by score, best chunk per document.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
		sources, err := s.gate.Search(ctx, boundary.SearchRequest{
			Query:     args.Query,
			Limit:     args.Limit,
			DocType:   args.DocType,
			Promotion: args.Promotion,
			Kind:      args.Kind,
		})
		if err != nil {
			return nil, searchOutput{}, err
		}
		return nil, searchOutput{
			Results: toResults(sources),
			Count:   len(sources),
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query",
		Description: "Assemble retrieval context for a question: pinned documents first when requested, then the most similar sources above the cutoff.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args queryInput) (*mcp.CallToolResult, queryOutput, error) {
		res, err := s.gate.Query(ctx, boundary.QueryRequest{
			Query:          args.Query,
			MaxSources:     args.MaxSources,
			IncludeTopTier: args.IncludeTopTier,
		})
		if err != nil {
			return nil, queryOutput{}, err
		}
		return nil, queryOutput{
			Sources: toResults(res.Sources),
			Context: res.Context,
		}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "set_promotion",
		Description: "Set a document's promotion level (standard, elevated, pinned). Propagates to all chunks atomically.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args setPromotionInput) (*mcp.CallToolResult, setPromotionOutput, error) {
		if err := s.gate.SetPromotion(ctx, args.Path, args.Level); err != nil {
			return nil, setPromotionOutput{}, err
		}
		return nil, setPromotionOutput{Path: args.Path, Level: args.Level}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete",
		Description: "Delete a document with its chunks, or the whole active tenant scope when no path is given. Returns the number of records removed.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args deleteInput) (*mcp.CallToolResult, deleteOutput, error) {
		n, err := s.gate.Delete(ctx, boundary.DeleteRequest{
			Path:          args.Path,
			Kind:          args.Kind,
			AllBranches:   args.AllBranches,
			AllWorkspaces: args.AllWorkspaces,
		})
		if err != nil {
			return nil, deleteOutput{}, err
		}
		return nil, deleteOutput{Deleted: n}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "status",
		Description: "Report the session state: whether a project is active and under which tenant.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ statusInput) (*mcp.CallToolResult, statusOutput, error) {
		session, ok := s.gate.Status()
		if !ok {
			return nil, statusOutput{Active: false}, nil
		}
		return nil, statusOutput{
			Active:        true,
			Project:       session.Project,
			Branch:        session.Branch,
			WorkspaceHash: session.WorkspaceHash,
		}, nil
	})
}

func toResults(sources []retrieval.Source) []searchResult {
	results := make([]searchResult, len(sources))
	for i, src := range sources {
		results[i] = searchResult{
			Path:       src.Path,
			Title:      src.Title,
			DocType:    src.DocType,
			Promotion:  string(src.Promotion),
			Score:      src.Score,
			HeaderPath: src.HeaderPath,
			Content:    src.Content,
		}
		if !src.UpdatedAt.IsZero() {
			results[i].UpdatedAt = src.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}
	return results
}
