package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/boundary"
	"github.com/fyrsmithlabs/knowledged/internal/chunking"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
)

// One-shot commands build the same stack as serve, run a single operation
// against the activated project, print JSON to stdout and exit.

var (
	indexDocType  string
	indexKind     string
	searchLimit   int
	searchDocType string
	searchLevel   string
)

var indexCmd = &cobra.Command{
	Use:   "index --project <path> <file>...",
	Short: "Index one or more markdown files into the project's store",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search --project <path> <query>",
	Short: "Search the project's indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, searchCmd} {
		c.Flags().StringVar(&projectPath, "project", "",
			"project to operate on (path to its config or directory)")
		_ = c.MarkFlagRequired("project")
	}
	indexCmd.Flags().StringVar(&indexDocType, "doc-type", "", "document type (decision, style, ...)")
	indexCmd.Flags().StringVar(&indexKind, "kind", "", "collection kind: knowledge (default) or reference")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max results (0 uses the configured default)")
	searchCmd.Flags().StringVar(&searchDocType, "doc-type", "", "restrict to one document type")
	searchCmd.Flags().StringVar(&searchLevel, "promotion", "", "restrict to one promotion level")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
}

// newGate composes the service stack for a one-shot invocation and returns
// the gate plus a cleanup function.
func newGate(cfg *config.Config, logger *zap.Logger) (*boundary.Service, func(), error) {
	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		Retry: embeddings.RetryConfig{
			MaxRetries:     cfg.Embedding.MaxRetries,
			RequestTimeout: cfg.Embedding.RequestTimeout,
			RatePerSecond:  cfg.Embedding.RatePerSecond,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing embedding provider: %w", err)
	}

	store, err := newStore(cfg, provider.Dimension(), logger)
	if err != nil {
		_ = provider.Close()
		return nil, nil, fmt.Errorf("initializing vector store: %w", err)
	}
	cleanup := func() {
		_ = store.Close()
		_ = provider.Close()
	}

	kn, err := knowledge.NewService(knowledge.Config{
		Namespace: cfg.Knowledge.Namespace,
		Chunking: chunking.Config{
			ThresholdChars:      cfg.Knowledge.ChunkThresholdChars,
			MaxHeaderDepth:      cfg.Knowledge.MaxHeaderDepth,
			FallbackWindowLines: cfg.Knowledge.FallbackWindowLines,
		},
	}, store, provider, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initializing knowledge service: %w", err)
	}

	rt, err := retrieval.NewService(retrieval.Config{
		DefaultLimit:  cfg.Retrieval.DefaultLimit,
		MaxLimit:      cfg.Retrieval.MaxLimit,
		MinSimilarity: float32(cfg.Retrieval.MinSimilarity),
		PinnedCap:     cfg.Retrieval.PinnedCap,
	}, kn, provider, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initializing retrieval service: %w", err)
	}

	gate := boundary.NewService(boundary.Config{
		MaxContentBytes: cfg.Knowledge.MaxContentBytes,
	}, kn, rt, logger)
	return gate, cleanup, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	gate, cleanup, err := newGate(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if _, err := gate.Activate(ctx, boundary.ActivateRequest{ConfigPath: projectPath}); err != nil {
		return fmt.Errorf("activating project: %w", err)
	}
	root, err := projectRoot(projectPath)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, file := range args {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		rel, err := relativeTo(root, file)
		if err != nil {
			return err
		}
		result, err := gate.Index(ctx, boundary.IndexRequest{
			Path:    rel,
			Content: string(content),
			Title:   headingTitle(string(content), rel),
			DocType: indexDocType,
			Kind:    indexKind,
		})
		if err != nil {
			return fmt.Errorf("indexing %s: %w", rel, err)
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	gate, cleanup, err := newGate(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if _, err := gate.Activate(ctx, boundary.ActivateRequest{ConfigPath: projectPath}); err != nil {
		return fmt.Errorf("activating project: %w", err)
	}

	sources, err := gate.Search(ctx, boundary.SearchRequest{
		Query:     args[0],
		Limit:     searchLimit,
		DocType:   searchDocType,
		Promotion: searchLevel,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sources)
}

// relativeTo maps an input file onto its project-relative path.
func relativeTo(root, file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the project root %s", file, root)
	}
	return filepath.ToSlash(rel), nil
}

// headingTitle extracts the first top-level markdown heading, falling back to
// the file name without extension.
func headingTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
