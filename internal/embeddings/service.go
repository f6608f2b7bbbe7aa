package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryConfig bounds retry behavior for transient provider failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Default: 3.
	MaxRetries int

	// InitialBackoff is the first backoff duration; it doubles per retry.
	// Default: 500ms.
	InitialBackoff time.Duration

	// RequestTimeout bounds each individual attempt. Default: 15s.
	RequestTimeout time.Duration

	// RatePerSecond caps outgoing requests (0 = unlimited).
	RatePerSecond float64
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

// Config holds configuration for the TEI embedding service.
type Config struct {
	// BaseURL is the base URL for the embedding API.
	BaseURL string

	// Model is the embedding model served at BaseURL.
	Model string

	// Dimension overrides the detected output dimensionality (0 = detect
	// from the model name).
	Dimension int

	// Retry tunes retry/backoff behavior.
	Retry RetryConfig
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// Service provides embedding generation against a TEI-compatible HTTP API.
type Service struct {
	config    Config
	client    *http.Client
	limiter   *rate.Limiter
	dimension int
	logger    *zap.Logger
	metrics   *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	config.Retry.ApplyDefaults()

	dimension := config.Dimension
	if dimension == 0 {
		dimension = DetectDimension(config.Model)
	}

	var limiter *rate.Limiter
	if config.Retry.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.Retry.RatePerSecond), 1)
	}

	return &Service{
		config:    config,
		client:    &http.Client{Timeout: config.Retry.RequestTimeout},
		limiter:   limiter,
		dimension: dimension,
		logger:    zap.NewNop(),
		metrics:   NewMetrics(zap.NewNop()),
	}, nil
}

// WithLogger sets the logger (used only for lengths and outcomes).
func (s *Service) WithLogger(logger *zap.Logger) *Service {
	s.logger = logger
	s.metrics = NewMetrics(logger)
	return s
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// EmbedDocuments generates embeddings for multiple texts.
//
// Transient failures are retried with exponential backoff; after exhaustion
// the returned error wraps ErrDegraded.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := s.embedWithRetry(ctx, texts)
	if err != nil {
		genErr = err
		return nil, genErr
	}

	if len(vectors) != len(texts) {
		genErr = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
		return nil, genErr
	}
	if err := ValidateVectors(vectors, s.dimension); err != nil {
		genErr = err
		return nil, genErr
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	vectors, err := s.embedWithRetry(ctx, []string{text})
	if err != nil {
		genErr = err
		return nil, genErr
	}
	if len(vectors) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		return nil, genErr
	}
	if err := ValidateVectors(vectors[:1], s.dimension); err != nil {
		genErr = err
		return nil, genErr
	}
	return vectors[0], nil
}

// embedWithRetry performs the HTTP call with bounded retry and backoff.
func (s *Service) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	backoff := s.config.Retry.InitialBackoff

	totalChars := 0
	for _, t := range texts {
		totalChars += len(t)
	}

	for attempt := 0; attempt <= s.config.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying embedding request",
				zap.Int("attempt", attempt),
				zap.Int("batch_size", len(texts)),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := s.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	s.logger.Error("embedding provider exhausted retries",
		zap.Int("batch_size", len(texts)),
		zap.Int("total_chars", totalChars),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("%w: %d attempts: %v", ErrDegraded, s.config.Retry.MaxRetries+1, lastErr)
}

// embedOnce performs a single embed request.
func (s *Service) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	req := teiRequest{Inputs: texts, Truncate: true}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.config.Retry.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain body for connection reuse; status code is enough detail.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrEmbeddingFailed, resp.StatusCode)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return vectors, nil
}

// Dimension returns the embedding dimension for the configured model.
func (s *Service) Dimension() int {
	return s.dimension
}

// Close is a no-op for the HTTP service.
func (s *Service) Close() error {
	return nil
}
