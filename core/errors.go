package core

import "errors"

// Error taxonomy of the execution fabric. Callers classify failures with
// errors.Is; every wrapping site keeps the underlying cause in the chain.
var (
	// ErrInvalidConfig marks static misconfiguration such as an
	// unparseable memory-pool strategy. Fatal at context-build time.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedBackend is returned when a storage URL scheme or
	// session storage kind is not one of the registered backends.
	ErrUnsupportedBackend = errors.New("unsupported storage backend")

	// ErrResourceResolution marks a workgroup lookup backend failure.
	// Proceeding with default limits would break tenant isolation, so the
	// error aborts context construction.
	ErrResourceResolution = errors.New("workgroup resource resolution failed")

	// ErrPlanning and ErrExecution wrap engine failures during plan
	// compilation and streaming execution. Queries are deterministic, so
	// neither is retried.
	ErrPlanning  = errors.New("query planning failed")
	ErrExecution = errors.New("query execution failed")

	// ErrWrite marks a codec failure while persisting a batch during
	// compaction. The compaction aborts without committing a partial file.
	ErrWrite = errors.New("segment write failed")

	// ErrResourcesExhausted is returned by a strict-ceiling memory pool
	// when a reservation would exceed the configured bound.
	ErrResourcesExhausted = errors.New("resources exhausted")
)
