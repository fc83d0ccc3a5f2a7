package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexUnavailable: the sparse index has no published snapshot.
	ErrIndexUnavailable = errors.New("sparse index unavailable")
	// ErrRetrieverUnavailable: the dense retriever could not be reached.
	ErrRetrieverUnavailable = errors.New("dense retriever unavailable")
	// ErrRerankerUnavailable: the cross-encoder scorer could not be reached.
	ErrRerankerUnavailable = errors.New("reranker unavailable")
	// ErrNoSignal: every retrieval signal failed; nothing is left to rank.
	ErrNoSignal = errors.New("no retrieval signal available")
	// ErrConfigMismatch: corpus and query embedding configurations disagree.
	ErrConfigMismatch = errors.New("embedding configuration mismatch")
	// ErrInvalidQuery: malformed request input.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrChunkNotFound: metadata lookup missed.
	ErrChunkNotFound = errors.New("chunk not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
