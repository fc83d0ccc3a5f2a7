package usecase

import (
	"sort"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
	"github.com/vergabe-labs/tenderbot/internal/core/ports"
)

const defaultRRFK = 60

type rankedList struct {
	signal domain.Signal
	items  []ports.ScoredChunk
}

// fuseRRF merges the contributing ranked lists with Reciprocal Rank Fusion:
// a chunk at 1-based rank r contributes 1/(k+r) per list, summed across
// lists. Chunks are deduplicated by id; ordering is fused score descending
// with chunk id ascending as the tie-break, so repeated runs over the same
// inputs reproduce the same sequence byte for byte.
func fuseRRF(rrfK int, lists ...rankedList) []domain.Candidate {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*domain.Candidate)
	for _, list := range lists {
		for rank, item := range list.items {
			candidate, ok := acc[item.ChunkID]
			if !ok {
				candidate = &domain.Candidate{ChunkID: item.ChunkID, Chunk: item.Chunk}
				acc[item.ChunkID] = candidate
			}
			if candidate.Chunk.Text == "" && item.Chunk.Text != "" {
				candidate.Chunk = item.Chunk
			}
			candidate.FusedScore += 1.0 / float64(rrfK+rank+1)

			score := item.Score
			switch list.signal {
			case domain.SignalSparse:
				candidate.SparseScore = &score
			case domain.SignalDense, domain.SignalDenseTranslated:
				if candidate.DenseScore == nil || *candidate.DenseScore < score {
					candidate.DenseScore = &score
				}
			}
		}
	}

	out := make([]domain.Candidate, 0, len(acc))
	for _, c := range acc {
		c.FinalScore = c.FusedScore
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func trimCandidates(candidates []domain.Candidate, limit int) []domain.Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func assignRanks(candidates []domain.Candidate) []domain.Candidate {
	for i := range candidates {
		candidates[i].Rank = i
	}
	return candidates
}
