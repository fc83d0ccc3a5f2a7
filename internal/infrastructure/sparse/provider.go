package sparse

import (
	"fmt"
	"sync/atomic"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
)

// Provider publishes index snapshots to concurrent readers. Swap is the only
// mutation: in-flight searches keep the snapshot they loaded and finish
// against it.
type Provider struct {
	current atomic.Pointer[Snapshot]
}

func NewProvider() *Provider {
	return &Provider{}
}

// Swap atomically publishes a freshly built snapshot for subsequent queries.
func (p *Provider) Swap(snap *Snapshot) {
	p.current.Store(snap)
}

// Current returns the published snapshot, or nil before the first Swap.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Search implements ports.SparseSearcher against the published snapshot.
func (p *Provider) Search(tokens []string, topN int) ([]ports.ScoredChunk, error) {
	snap := p.current.Load()
	if snap == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "sparse search", fmt.Errorf("no snapshot published"))
	}
	return snap.Search(tokens, topN), nil
}
