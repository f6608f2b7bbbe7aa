// Package embeddings wraps external text-to-vector services behind the
// Provider interface.
//
// Two providers are available: a TEI-compatible HTTP service and local ONNX
// models via FastEmbed (CGO builds only). Both declare their output
// dimensionality so the store can validate it before any write.
//
// Provider failures are retried with bounded exponential backoff; once retries
// are exhausted the error wraps ErrDegraded and the caller's write fails
// cleanly rather than storing a zero vector.
//
// Logging policy: this package never logs input text or vector values, only
// text lengths, batch sizes, and outcomes.
package embeddings
