package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for embedding operations.
var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates a single embedding attempt failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDegraded indicates the provider exhausted its retries. Writes that
	// hit this error fail cleanly; the document keeps its previous state.
	ErrDegraded = errors.New("embedding provider degraded")

	// ErrDimensionMismatch indicates the provider returned vectors whose
	// dimensionality differs from the declared one.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider generates vector embeddings from text.
//
// EmbedDocuments is batched; EmbedQuery may be optimized differently by the
// model. Dimension is fixed for a provider's lifetime and is validated against
// the collection's configured dimensionality before writes.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "tei" or "fastembed".
	Provider string

	// Model is the embedding model name.
	Model string

	// BaseURL is the TEI endpoint (TEI provider only).
	BaseURL string

	// CacheDir is the model cache directory (FastEmbed only).
	CacheDir string

	// Retry tunes the retry/backoff behavior (TEI provider).
	Retry RetryConfig
}

// knownModelDimensions maps model names to their output dimensionality.
var knownModelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-large-en-v1.5":                 1024,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// DetectDimension returns the embedding dimension for a model name, falling
// back on common naming patterns and finally 384 (bge-small).
func DetectDimension(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "tei", "":
		return NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Retry:   cfg.Retry,
		})
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// ValidateVectors checks that every vector has the expected dimensionality.
// A mismatch is a pipeline bug, never silently truncated or padded.
func ValidateVectors(vectors [][]float32, dimension int) error {
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return nil
}
