package resolver

// Strategy controls how aggressively one resolution attempt searches and
// matches. Escalation strictly loosens the similarity floor and widens the
// candidate cap; it never tightens either.
type Strategy struct {
	Name          string
	MinSimilarity float64
	MaxCandidates int
	// ExactOnly restricts matching to candidates whose normalized title (or
	// an alt title) equals the entry title exactly.
	ExactOnly bool
	// UseVariants widens the search with alternate-title variants.
	UseVariants bool
}

// StrategyForAttempt maps an attempt count to its escalation strategy.
// Attempt 1 is strict, attempts 2-3 relax in steps, and attempt 4 onward is
// permissive.
func StrategyForAttempt(attempt int) Strategy {
	switch {
	case attempt <= 1:
		return Strategy{Name: "strict", MinSimilarity: 0.85, MaxCandidates: 5, ExactOnly: true}
	case attempt == 2:
		return Strategy{Name: "relaxed", MinSimilarity: 0.75, MaxCandidates: 10, UseVariants: true}
	case attempt == 3:
		return Strategy{Name: "relaxed", MinSimilarity: 0.70, MaxCandidates: 15, UseVariants: true}
	default:
		return Strategy{Name: "permissive", MinSimilarity: 0.60, MaxCandidates: 20, UseVariants: true}
	}
}
