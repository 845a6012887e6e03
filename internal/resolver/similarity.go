package resolver

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// foldTitle reduces a title to its comparison form: case-folded, Unicode
// compatibility-decomposed, with everything except letters and digits
// (punctuation, spacing, combining marks) dropped.
func foldTitle(s string) string {
	s = cases.Fold().String(s)
	s = norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity returns the bigram Dice coefficient of the two titles after
// normalization, in [0,1]. Titles that normalize to the same string score
// 1.0; titles too short to form bigrams compare by equality.
func Similarity(a, b string) float64 {
	na, nb := foldTitle(a), foldTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	ra, rb := []rune(na), []rune(nb)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	grams := make(map[string]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		grams[string(ra[i:i+2])]++
	}
	overlap := 0
	for i := 0; i < len(rb)-1; i++ {
		g := string(rb[i : i+2])
		if grams[g] > 0 {
			grams[g]--
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(ra)-1+len(rb)-1)
}

// bestSimilarity scores a candidate against the entry title using its main
// title and all alternates, keeping the best score.
func bestSimilarity(entryTitle, title string, altTitles []string) float64 {
	best := Similarity(entryTitle, title)
	for _, alt := range altTitles {
		if s := Similarity(entryTitle, alt); s > best {
			best = s
		}
	}
	return best
}

// exactTitleMatch reports whether any of the candidate's titles normalizes
// to the same string as the entry title.
func exactTitleMatch(entryTitle, title string, altTitles []string) bool {
	want := foldTitle(entryTitle)
	if want == "" {
		return false
	}
	if foldTitle(title) == want {
		return true
	}
	for _, alt := range altTitles {
		if foldTitle(alt) == want {
			return true
		}
	}
	return false
}
