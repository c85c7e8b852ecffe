package store

import "errors"

var (
	// ErrUnavailable indicates an I/O or connection fault talking to the
	// backing index. Callers treat it as retryable at the operation boundary.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch indicates a vector whose length does not match the
	// collection's configured embedding dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
