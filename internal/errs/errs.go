// Package errs defines the typed error kinds the ingestion and query core
// recognizes, per the error handling design. Call sites wrap a sentinel with
// context using fmt.Errorf("...: %w", ...) and callers inspect with
// errors.Is/errors.As.
package errs

import "errors"

var (
	// ErrExtractionFailed is returned when ContentExtractor and its fallback
	// both fail to produce usable text.
	ErrExtractionFailed = errors.New("content extraction failed")

	// ErrEmbeddingFailed is returned by EmbeddingClient on a provider error.
	// Retryable by the job queue.
	ErrEmbeddingFailed = errors.New("embedding request failed")

	// ErrVectorIndexTransient marks a retryable VectorIndex error (timeouts,
	// rate limits, connection resets).
	ErrVectorIndexTransient = errors.New("vector index transient error")

	// ErrVectorFilterDeleteUnsupported is raised internally by a VectorIndex
	// backend when it cannot delete by metadata filter. It must never
	// surface past the VectorIndex wrapper, which handles it via the
	// query-then-delete-by-id fallback.
	ErrVectorFilterDeleteUnsupported = errors.New("vector index does not support filter-delete")

	// ErrLLMFailed marks an LLMClient failure. Callers degrade gracefully
	// for summaries/routing/rewriting, or return an error-answer for
	// synthesis.
	ErrLLMFailed = errors.New("llm request failed")

	// ErrNotFound marks a missing metadata-store entity (document, question,
	// knowledge base, message).
	ErrNotFound = errors.New("entity not found")

	// ErrPreconditionFailed marks a status-guarded update whose precondition
	// ("current status = expected") did not hold. Handlers treat this as
	// "another worker already claimed this" and abort without changing
	// state; it is never retried.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrCancelled marks a cancelled job. The job queue does not propagate
	// cancellation to in-flight handlers; this exists for completeness of
	// the error-kind table.
	ErrCancelled = errors.New("job cancelled")

	// ErrSQLNotReadOnly is raised by the TAG SQL gate when a generated
	// statement is anything other than a single read-only SELECT.
	ErrSQLNotReadOnly = errors.New("sql statement is not a read-only select")
)

// Retryable reports whether a job-queue handler should retry on this error,
// per the allow-list in spec.md section 4.8 / 7.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrEmbeddingFailed),
		errors.Is(err, ErrVectorIndexTransient),
		errors.Is(err, ErrLLMFailed):
		return true
	default:
		return false
	}
}
