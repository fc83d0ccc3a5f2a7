package ports

import (
	"context"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

// RetrievalService is the inbound contract for one query/response cycle.
type RetrievalService interface {
	Retrieve(ctx context.Context, query string) (*domain.RetrievalResult, error)
}
