package usecase

import (
	"sort"

	"github.com/vergabe-labs/tenderbot/internal/core/domain"
)

// blendReranked folds cross-encoder scores into the fused head. The fused
// scores are min-max normalized over the head so both signals live on [0,1],
// then blended with a weight that lets the reranker reorder while the fusion
// score keeps it anchored against rerank noise on out-of-distribution
// queries. scores must be index-aligned with head.
func blendReranked(head []domain.Candidate, scores []float64, weight float64) []domain.Candidate {
	if len(head) == 0 || len(scores) != len(head) {
		return head
	}
	if weight < 0 || weight > 1 {
		weight = 0.8
	}

	minFused, maxFused := head[0].FusedScore, head[0].FusedScore
	for _, c := range head[1:] {
		if c.FusedScore < minFused {
			minFused = c.FusedScore
		}
		if c.FusedScore > maxFused {
			maxFused = c.FusedScore
		}
	}
	fusedRange := maxFused - minFused
	normalize := func(v float64) float64 {
		if fusedRange <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minFused) / fusedRange
	}

	out := make([]domain.Candidate, len(head))
	copy(out, head)
	for i := range out {
		score := scores[i]
		out[i].RerankScore = &score
		out[i].FinalScore = weight*score + (1-weight)*normalize(out[i].FusedScore)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
