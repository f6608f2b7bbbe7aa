package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/boundary"
	"github.com/fyrsmithlabs/knowledged/internal/chunking"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/httpapi"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/logging"
	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
	"github.com/fyrsmithlabs/knowledged/internal/telemetry"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
	"github.com/fyrsmithlabs/knowledged/internal/watch"
	"github.com/fyrsmithlabs/knowledged/pkg/mcp"
)

var (
	projectPath string
	watchFiles  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daemon: MCP over stdio plus health endpoints",
	Long: `Start the daemon. The MCP server runs on the stdio transport; health and
status endpoints are served over HTTP. With --project the given project is
activated at startup and, when file watching is enabled, its working copy is
mirrored into the store as files change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&projectPath, "project", "",
		"activate this project at startup (path to its config or directory)")
	serveCmd.Flags().BoolVar(&watchFiles, "watch", false,
		"watch the activated project's files and index changes (requires --project)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if watchFiles && projectPath == "" {
		return fmt.Errorf("--watch requires --project")
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

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
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	defer func() { _ = provider.Close() }()

	store, err := newStore(cfg, provider.Dimension(), logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	kn, err := knowledge.NewService(knowledge.Config{
		Namespace: cfg.Knowledge.Namespace,
		Chunking: chunking.Config{
			ThresholdChars:      cfg.Knowledge.ChunkThresholdChars,
			MaxHeaderDepth:      cfg.Knowledge.MaxHeaderDepth,
			FallbackWindowLines: cfg.Knowledge.FallbackWindowLines,
		},
	}, store, provider, logger)
	if err != nil {
		return fmt.Errorf("initializing knowledge service: %w", err)
	}

	rt, err := retrieval.NewService(retrieval.Config{
		DefaultLimit:  cfg.Retrieval.DefaultLimit,
		MaxLimit:      cfg.Retrieval.MaxLimit,
		MinSimilarity: float32(cfg.Retrieval.MinSimilarity),
		PinnedCap:     cfg.Retrieval.PinnedCap,
	}, kn, provider, logger)
	if err != nil {
		return fmt.Errorf("initializing retrieval service: %w", err)
	}

	gate := boundary.NewService(boundary.Config{
		MaxContentBytes: cfg.Knowledge.MaxContentBytes,
	}, kn, rt, logger)

	if projectPath != "" {
		res, err := gate.Activate(ctx, boundary.ActivateRequest{ConfigPath: projectPath})
		if err != nil {
			return fmt.Errorf("activating project: %w", err)
		}
		logger.Info("project activated at startup",
			zap.String("project", res.Project),
			zap.String("branch", res.Branch))

		if watchFiles || cfg.Watch.Enabled {
			root, err := projectRoot(projectPath)
			if err != nil {
				return err
			}
			watcher, err := watch.New(root, cfg.Watch, gate, logger)
			if err != nil {
				return fmt.Errorf("initializing watcher: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("starting watcher: %w", err)
			}
			defer watcher.Stop()
		}
	}

	httpSrv, err := httpapi.NewServer(gate, store, kn, logger, httpapi.Config{
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	mcpSrv, err := mcp.NewServer(&mcp.Config{
		Name:    "knowledged",
		Version: version,
		Logger:  logger,
	}, gate)
	if err != nil {
		return fmt.Errorf("initializing mcp server: %w", err)
	}

	// Blocks until the client disconnects or the context is canceled.
	if err := mcpSrv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newStore builds the configured vector store engine.
func newStore(cfg *config.Config, dimension int, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.Store.Engine {
	case "qdrant":
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:      cfg.Store.Qdrant.Host,
			Port:      cfg.Store.Qdrant.Port,
			UseTLS:    cfg.Store.Qdrant.UseTLS,
			Dimension: dimension,
			HNSW: vectorstore.HNSWConfig{
				M:           cfg.Store.HNSW.M,
				EfConstruct: cfg.Store.HNSW.EfConstruct,
				EfSearch:    cfg.Store.HNSW.EfSearch,
			},
		}, logger)
	default:
		return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:      cfg.Store.Chromem.Path,
			Compress:  cfg.Store.Chromem.Compress,
			Dimension: dimension,
		}, logger)
	}
}

// projectRoot resolves the directory a project config lives in.
func projectRoot(path string) (string, error) {
	project, err := config.LoadProject(path)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	return project.Root, nil
}
