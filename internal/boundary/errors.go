package boundary

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/embeddings"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
	"github.com/fyrsmithlabs/knowledged/internal/sanitize"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
	"github.com/fyrsmithlabs/knowledged/internal/vectorstore"
)

// Code is the stable error classification exposed to callers. Validation and
// isolation failures are resolved here at the boundary and never reach
// storage logic; storage and provider failures propagate up typed so the
// caller can decide whether to retry.
type Code string

const (
	// CodeValidation marks malformed or out-of-range input, rejected
	// before touching storage.
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeTenantNotActivated marks an operation that requires a session
	// tenant that was never established.
	CodeTenantNotActivated Code = "TENANT_NOT_ACTIVATED"

	// CodeNotFound marks an absent entity.
	CodeNotFound Code = "NOT_FOUND"

	// CodeStoreUnavailable marks a transient store failure, retryable
	// with backoff.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	// CodeInvalidEntity marks a constraint violation such as a dimension
	// mismatch. Non-retryable; signals a pipeline bug.
	CodeInvalidEntity Code = "INVALID_ENTITY"

	// CodeDegradedEmbedding marks an embedding provider that exhausted
	// its retries. The index operation failed cleanly.
	CodeDegradedEmbedding Code = "DEGRADED_EMBEDDING"

	// CodeInvalidLevel marks an unknown promotion level.
	CodeInvalidLevel Code = "INVALID_LEVEL"

	// CodeConfigNotFound marks a missing project configuration file.
	CodeConfigNotFound Code = "CONFIG_NOT_FOUND"

	// CodeInvalidConfig marks an unreadable or invalid project
	// configuration.
	CodeInvalidConfig Code = "INVALID_CONFIG"

	// CodeInternal marks unclassified failures.
	CodeInternal Code = "INTERNAL"
)

// Error is a classified boundary error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may retry with backoff.
func (e *Error) Retryable() bool {
	return e.Code == CodeStoreUnavailable
}

// NewError creates a classified error.
func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Classify wraps an internal error with its taxonomy code. Already-classified
// errors pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}

	switch {
	case errors.Is(err, tenant.ErrMissingTenant):
		return NewError(CodeTenantNotActivated, "no active tenant context", err)
	case errors.Is(err, knowledge.ErrInvalidLevel):
		return NewError(CodeInvalidLevel, "unknown promotion level", err)
	case errors.Is(err, knowledge.ErrNotFound), errors.Is(err, vectorstore.ErrNotFound):
		return NewError(CodeNotFound, "not found", err)
	case errors.Is(err, vectorstore.ErrUnavailable):
		return NewError(CodeStoreUnavailable, "store unavailable", err)
	case errors.Is(err, config.ErrConfigNotFound):
		return NewError(CodeConfigNotFound, "project config not found", err)
	case errors.Is(err, config.ErrInvalidConfig):
		return NewError(CodeInvalidConfig, "invalid project config", err)
	case errors.Is(err, embeddings.ErrDegraded):
		return NewError(CodeDegradedEmbedding, "embedding provider degraded", err)
	case errors.Is(err, vectorstore.ErrInvalidEntity), errors.Is(err, embeddings.ErrDimensionMismatch):
		return NewError(CodeInvalidEntity, "entity constraint violation", err)
	case errors.Is(err, tenant.ErrInvalidTenant),
		errors.Is(err, knowledge.ErrInvalidRequest),
		errors.Is(err, sanitize.ErrPathTraversal),
		errors.Is(err, sanitize.ErrAbsolutePath),
		errors.Is(err, sanitize.ErrNullByte),
		errors.Is(err, sanitize.ErrInvalidEncoding),
		errors.Is(err, sanitize.ErrEmptyPath),
		errors.Is(err, sanitize.ErrPathTooLong):
		return NewError(CodeValidation, "invalid input", err)
	default:
		return NewError(CodeInternal, "internal error", err)
	}
}
