// Package config provides configuration loading for knowledged.
package config

import (
	"fmt"
	"time"
)

// Config is the daemon configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Store     StoreConfig     `koanf:"store"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Watch     WatchConfig     `koanf:"watch"`
}

// ServerConfig configures the HTTP health/readiness server.
type ServerConfig struct {
	// Port for the health endpoints. 0 disables the server.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format: json or console.
	Format string `koanf:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `koanf:"endpoint"`

	// ServiceName identifies this deployment in traces and metrics.
	ServiceName string `koanf:"service_name"`

	// Insecure disables TLS to the collector.
	Insecure bool `koanf:"insecure"`
}

// StoreConfig selects and tunes the vector store engine.
type StoreConfig struct {
	// Engine: chromem (embedded, default) or qdrant.
	Engine string `koanf:"engine"`

	Chromem ChromemConfig   `koanf:"chromem"`
	Qdrant  QdrantConfig    `koanf:"qdrant"`
	HNSW    HNSWIndexConfig `koanf:"hnsw"`
}

// ChromemConfig configures the embedded engine.
type ChromemConfig struct {
	// Path is the persistence directory. Empty runs in-memory.
	Path string `koanf:"path"`

	// Compress gzip-compresses persisted data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig configures the external engine.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
}

// HNSWIndexConfig tunes the ANN index per expected collection size.
type HNSWIndexConfig struct {
	M           uint64 `koanf:"m"`
	EfConstruct uint64 `koanf:"ef_construct"`
	EfSearch    uint64 `koanf:"ef_search"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider: tei (HTTP text-embeddings-inference, default) or
	// fastembed (in-process, cgo builds only).
	Provider string `koanf:"provider"`

	// BaseURL of the TEI server.
	BaseURL string `koanf:"base_url"`

	// Model name; also used to infer the dimension when unset.
	Model string `koanf:"model"`

	// Dimension overrides the model's known dimensionality.
	Dimension int `koanf:"dimension"`

	// MaxRetries bounds retry attempts before the provider reports
	// degraded.
	MaxRetries int `koanf:"max_retries"`

	// RequestTimeout bounds a single embedding call.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// RatePerSecond throttles outgoing embedding requests. 0 disables.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// KnowledgeConfig configures the document store.
type KnowledgeConfig struct {
	// Namespace prefixes collection names.
	Namespace string `koanf:"namespace"`

	// ChunkThresholdChars is the size above which documents are chunked.
	ChunkThresholdChars int `koanf:"chunk_threshold_chars"`

	// MaxHeaderDepth bounds which heading levels split chunks.
	MaxHeaderDepth int `koanf:"max_header_depth"`

	// FallbackWindowLines sizes fixed windows for heading-less documents.
	FallbackWindowLines int `koanf:"fallback_window_lines"`

	// MaxContentBytes caps a single document submission.
	MaxContentBytes int `koanf:"max_content_bytes"`
}

// RetrievalConfig configures ranking.
type RetrievalConfig struct {
	DefaultLimit  int     `koanf:"default_limit"`
	MaxLimit      int     `koanf:"max_limit"`
	MinSimilarity float64 `koanf:"min_similarity"`
	PinnedCap     int     `koanf:"pinned_cap"`
}

// WatchConfig configures the file-change notifier.
type WatchConfig struct {
	Enabled bool `koanf:"enabled"`

	// Debounce coalesces rapid successive changes per path.
	Debounce time.Duration `koanf:"debounce"`

	// Extensions restricts watched files. Defaults to markdown.
	Extensions []string `koanf:"extensions"`
}

// ApplyDefaults sets defaults for missing fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 9632
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "knowledged"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}
	if c.Store.Engine == "" {
		c.Store.Engine = "chromem"
	}
	if c.Store.Qdrant.Host == "" {
		c.Store.Qdrant.Host = "localhost"
	}
	if c.Store.Qdrant.Port == 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Store.HNSW.M == 0 {
		c.Store.HNSW.M = 16
	}
	if c.Store.HNSW.EfConstruct == 0 {
		c.Store.HNSW.EfConstruct = 128
	}
	if c.Store.HNSW.EfSearch == 0 {
		c.Store.HNSW.EfSearch = 96
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "tei"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:8080"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.RequestTimeout == 0 {
		c.Embedding.RequestTimeout = 15 * time.Second
	}
	if c.Knowledge.Namespace == "" {
		c.Knowledge.Namespace = "knowledged"
	}
	if c.Knowledge.ChunkThresholdChars == 0 {
		c.Knowledge.ChunkThresholdChars = 4096
	}
	if c.Knowledge.MaxHeaderDepth == 0 {
		c.Knowledge.MaxHeaderDepth = 3
	}
	if c.Knowledge.FallbackWindowLines == 0 {
		c.Knowledge.FallbackWindowLines = 120
	}
	if c.Knowledge.MaxContentBytes == 0 {
		c.Knowledge.MaxContentBytes = 1024 * 1024
	}
	if c.Retrieval.DefaultLimit == 0 {
		c.Retrieval.DefaultLimit = 10
	}
	if c.Retrieval.MaxLimit == 0 {
		c.Retrieval.MaxLimit = 50
	}
	if c.Retrieval.MinSimilarity == 0 {
		c.Retrieval.MinSimilarity = 0.25
	}
	if c.Retrieval.PinnedCap == 0 {
		c.Retrieval.PinnedCap = 3
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = 750 * time.Millisecond
	}
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = []string{".md", ".markdown"}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Store.Engine {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("store.engine must be chromem or qdrant, got %q", c.Store.Engine)
	}
	switch c.Embedding.Provider {
	case "tei", "fastembed":
	default:
		return fmt.Errorf("embedding.provider must be tei or fastembed, got %q", c.Embedding.Provider)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Retrieval.MinSimilarity < 0 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be in [0,1], got %v", c.Retrieval.MinSimilarity)
	}
	if c.Retrieval.MaxLimit < c.Retrieval.DefaultLimit {
		return fmt.Errorf("retrieval.max_limit %d below default_limit %d", c.Retrieval.MaxLimit, c.Retrieval.DefaultLimit)
	}
	return nil
}
