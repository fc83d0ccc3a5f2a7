package sparse

import (
	"testing"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

func TestProviderSearchBeforeSwapFailsWithIndexUnavailable(t *testing.T) {
	p := NewProvider()

	_, err := p.Search([]string{"road"}, 10)
	if err == nil {
		t.Fatal("expected error before first swap")
	}
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestProviderSwapPublishesNewSnapshot(t *testing.T) {
	p := NewProvider()
	tok := NewTokenizer("de", "en", nil)

	p.Swap(Build([]domain.Chunk{{ID: "old-1", Text: "old corpus entry"}}, tok, DefaultParams(), "v1"))
	p.Swap(Build([]domain.Chunk{{ID: "new-1", Text: "new corpus entry"}}, tok, DefaultParams(), "v2"))

	got, err := p.Search([]string{"new", "corpus"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "new-1" {
		t.Fatalf("expected new-1 from swapped snapshot, got %v", got)
	}
	if p.Current().Version() != "v2" {
		t.Fatalf("expected published version v2, got %s", p.Current().Version())
	}
}

func TestProviderOldSnapshotStaysUsableAfterSwap(t *testing.T) {
	p := NewProvider()
	tok := NewTokenizer("de", "en", nil)

	old := Build([]domain.Chunk{{ID: "old-1", Text: "tunnel works"}}, tok, DefaultParams(), "v1")
	p.Swap(old)

	// A reader that grabbed the snapshot before the swap finishes against it.
	held := p.Current()
	p.Swap(Build(nil, tok, DefaultParams(), "v2"))

	got := held.Search([]string{"tunnel"}, 10)
	if len(got) != 1 || got[0].ChunkID != "old-1" {
		t.Fatalf("expected old snapshot to keep serving, got %v", got)
	}
}
