package httpadapter

import (
	"net/http"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrChunkNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNoSignal):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage keeps dependency details out of client responses;
// internals go to the structured log instead.
func publicErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return "invalid query"
	case domain.IsKind(err, domain.ErrChunkNotFound):
		return "not found"
	case domain.IsKind(err, domain.ErrNoSignal):
		return "retrieval temporarily unavailable"
	case domain.IsKind(err, domain.ErrConfigMismatch):
		return "retrieval misconfigured"
	default:
		return "internal error"
	}
}
