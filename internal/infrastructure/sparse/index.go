package sparse

import (
	"math"
	"sort"
	"time"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
)

// Params are the BM25 saturation and length-normalization constants.
type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75}
}

func (p Params) normalize() Params {
	def := DefaultParams()
	if p.K1 <= 0 {
		p.K1 = def.K1
	}
	if p.B < 0 || p.B > 1 {
		p.B = def.B
	}
	return p
}

type posting struct {
	doc int
	tf  float64
}

// Snapshot is one immutable index build over a corpus version. It owns its
// postings entirely; a rebuild produces a fresh Snapshot and never touches a
// published one.
type Snapshot struct {
	params    Params
	chunks    []domain.Chunk
	docLen    []float64
	avgDocLen float64
	postings  map[string][]posting
	version   string
	builtAt   time.Time
}

// Build constructs a snapshot from the corpus. The corpus is sorted by chunk
// id first so identical corpora produce identical snapshots regardless of
// input order.
func Build(corpus []domain.Chunk, tokenizer *Tokenizer, params Params, corpusVersion string) *Snapshot {
	params = params.normalize()

	ordered := make([]domain.Chunk, len(corpus))
	copy(ordered, corpus)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	snap := &Snapshot{
		params:   params,
		chunks:   ordered,
		docLen:   make([]float64, len(ordered)),
		postings: make(map[string][]posting),
		version:  corpusVersion,
		builtAt:  time.Now().UTC(),
	}

	var totalLen float64
	for i, chunk := range ordered {
		tokens := tokenizer.Tokenize(chunk.Text, "de")
		snap.docLen[i] = float64(len(tokens))
		totalLen += snap.docLen[i]

		tf := make(map[string]float64, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for term, freq := range tf {
			snap.postings[term] = append(snap.postings[term], posting{doc: i, tf: freq})
		}
	}
	if len(ordered) > 0 {
		snap.avgDocLen = totalLen / float64(len(ordered))
	}
	return snap
}

// Search scores the query tokens with BM25. Documents matching no term are
// excluded rather than scored as zero. Equal scores are ordered by chunk id
// ascending. The call is restartable: no cursor state is retained.
func (s *Snapshot) Search(tokens []string, topN int) []ports.ScoredChunk {
	if len(tokens) == 0 || len(s.chunks) == 0 {
		return []ports.ScoredChunk{}
	}

	// Collapse repeated query terms to their multiplicity.
	queryTF := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		queryTF[token]++
	}

	totalDocs := float64(len(s.chunks))
	scores := make(map[int]float64)
	for term, qf := range queryTF {
		plist, ok := s.postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (totalDocs-df+0.5)/(df+0.5))
		for _, p := range plist {
			norm := 1 - s.params.B + s.params.B*(s.docLen[p.doc]/s.avgDocLen)
			tfComponent := (p.tf * (s.params.K1 + 1)) / (p.tf + s.params.K1*norm)
			scores[p.doc] += qf * idf * tfComponent
		}
	}
	if len(scores) == 0 {
		return []ports.ScoredChunk{}
	}

	out := make([]ports.ScoredChunk, 0, len(scores))
	for doc, score := range scores {
		out = append(out, ports.ScoredChunk{
			ChunkID: s.chunks[doc].ID,
			Chunk:   s.chunks[doc],
			Score:   score,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})

	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func (s *Snapshot) Len() int {
	return len(s.chunks)
}

func (s *Snapshot) Version() string {
	return s.version
}

func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}
