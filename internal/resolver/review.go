package resolver

// ReviewDecision is the needs-review outcome plus the rationale kept for
// observability.
type ReviewDecision struct {
	NeedsReview bool
	Reason      string
}

// DecideReview combines match confidence signals into the needs-review flag.
// An exact external-id match always clears the flag; otherwise similarity,
// candidate-count ambiguity, and strategy confidence each can raise it.
func DecideReview(exactID bool, similarity float64, candidateCount int, strat Strategy) ReviewDecision {
	switch {
	case exactID:
		return ReviewDecision{NeedsReview: false, Reason: "exact_id_match"}
	case similarity < 0.80:
		return ReviewDecision{NeedsReview: true, Reason: "low_similarity"}
	case candidateCount > 5 && similarity < 0.90:
		return ReviewDecision{NeedsReview: true, Reason: "ambiguous_candidates"}
	case strat.Name == "permissive":
		return ReviewDecision{NeedsReview: true, Reason: "permissive_strategy"}
	default:
		return ReviewDecision{NeedsReview: false, Reason: "confident_match"}
	}
}
