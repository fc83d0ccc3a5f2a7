package usecase

// GroundingThresholds hold one calibrated cut-off per scoring scale.
// Reranked-blended scores track calibrated relevance; fused-only scores are
// sums of rank reciprocals and sit two orders of magnitude lower for equally
// relevant results, so a shared threshold would silently starve the
// unreranked path. Both values are deployment-tunable.
type GroundingThresholds struct {
	Reranked  float64
	FusedOnly float64
}

func DefaultGroundingThresholds() GroundingThresholds {
	return GroundingThresholds{
		Reranked:  0.58,
		FusedOnly: 0.02,
	}
}

// decideGrounded applies the threshold for the pipeline mode that produced
// the top score. The boundary is inclusive: score == threshold is grounded.
func decideGrounded(topScore float64, hasCandidates, usedReranker bool, th GroundingThresholds) bool {
	if !hasCandidates {
		return false
	}
	threshold := th.FusedOnly
	if usedReranker {
		threshold = th.Reranked
	}
	return topScore >= threshold
}
