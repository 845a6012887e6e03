package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/calyptra/serialhub/internal/catalog"
)

// searchCandidates runs the escalating search for one entry: the entry title
// plus, on relaxed strategies, its alternate-title variants. Candidates are
// deduplicated by external id, scored, filtered by the strategy floor, and
// capped at the strategy breadth.
func (r *Resolver) searchCandidates(ctx context.Context, entry catalog.LibraryEntry, strat Strategy) ([]catalog.Candidate, error) {
	queries := []string{entry.Title}
	if strat.UseVariants {
		queries = append(queries, TitleVariants(entry.Title)...)
	}

	hintID := ExternalIDFromURL(entry.SourceURL)
	byID := make(map[string]catalog.Candidate)
	for _, q := range queries {
		records, err := r.provider.Search(ctx, q, catalog.SearchOptions{Limit: strat.MaxCandidates})
		if err != nil {
			return nil, fmt.Errorf("provider search %q: %w", q, err)
		}
		for _, rec := range records {
			exact := hintID != "" && rec.ExternalID == hintID
			sim := bestSimilarity(entry.Title, rec.Title, rec.AltTitles)
			if exact {
				sim = 1.0
			}
			if strat.ExactOnly && !exact && !exactTitleMatch(entry.Title, rec.Title, rec.AltTitles) {
				continue
			}
			if sim < strat.MinSimilarity {
				continue
			}
			if cur, ok := byID[rec.ExternalID]; !ok || sim > cur.Similarity {
				byID[rec.ExternalID] = catalog.Candidate{Record: rec, Similarity: sim}
			}
		}
	}

	cands := make([]catalog.Candidate, 0, len(byID))
	for _, c := range byID {
		cands = append(cands, c)
	}
	sortCandidates(cands)
	if len(cands) > strat.MaxCandidates {
		cands = cands[:strat.MaxCandidates]
	}
	return cands, nil
}

// sortCandidates orders by similarity, then provider popularity, then
// external id. The id comparison makes selection deterministic when the
// other signals tie.
func sortCandidates(cands []catalog.Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Record.Popularity != b.Record.Popularity {
			return a.Record.Popularity > b.Record.Popularity
		}
		return a.Record.ExternalID < b.Record.ExternalID
	})
}
