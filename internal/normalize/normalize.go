// Package normalize converts raw scraped chapter labels into canonical
// number/type/slug identities. Every function is total: ambiguous input
// degrades to a nil number or an unknown slug, never an error.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/calyptra/serialhub/internal/catalog"
)

// UnknownNumber is the reserved canonical string for chapters whose label
// yields no numeric identity.
const UnknownNumber = "unknown"

// mergeWindow bounds how far apart two numberless chapters may have been
// published and still be treated as the same release.
const mergeWindow = 72 * time.Hour

var (
	labelPrefixRe = regexp.MustCompile(`^(?:chapters?|chap\.?|ch\.?|episodes?|ep\.?|#)\s*`)
	numberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	seasonTokenRe = regexp.MustCompile(`^s\d+$`)
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

var specialTokens = map[string]bool{
	"special":  true,
	"specials": true,
	"oneshot":  true,
	"omake":    true,
}

var extraTokens = map[string]bool{
	"extra":  true,
	"extras": true,
}

// Normalize derives the canonical identity of one scraped chapter from its
// label and optional title.
func Normalize(label, title string) catalog.NormalizedChapter {
	lowered := strings.TrimSpace(strings.ToLower(label))
	stripped := labelPrefixRe.ReplaceAllString(lowered, "")

	var number *float64
	if m := numberRe.FindString(stripped); m != "" {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			number = &f
		}
	}

	typ := classify(lowered + " " + strings.ToLower(title))

	return catalog.NormalizedChapter{
		Number: number,
		Type:   typ,
		Slug:   buildSlug(typ, number, title),
	}
}

// CanonicalString renders a chapter number in its canonical form: integral
// values (including x.0, x.00) become a bare integer string, fractional
// values keep the minimal decimal with trailing zeros stripped, and an
// absent number maps to the reserved sentinel. Re-parsing the result and
// rendering it again yields the same string.
func CanonicalString(number *float64) string {
	if number == nil {
		return UnknownNumber
	}
	return strconv.FormatFloat(*number, 'f', -1, 64)
}

// ShouldMerge reports whether two normalized chapters denote the same
// release. Chapters with numbers merge on equal number and type. When both
// numbers are absent, identity falls back to slug (title hash) equality,
// tightened by the release-proximity window when both publish dates exist.
func ShouldMerge(a, b catalog.NormalizedChapter, aPublished, bPublished *time.Time) bool {
	if a.Number != nil && b.Number != nil {
		return *a.Number == *b.Number && a.Type == b.Type
	}
	if a.Number != nil || b.Number != nil {
		return false
	}
	if a.Slug != b.Slug {
		return false
	}
	if aPublished != nil && bPublished != nil {
		delta := aPublished.Sub(*bPublished)
		if delta < 0 {
			delta = -delta
		}
		return delta <= mergeWindow
	}
	return true
}

// TitleHash returns the bounded normalized-title hash used as a slug for
// numberless chapters.
func TitleHash(title string) string {
	folded := nonAlnumRe.ReplaceAllString(strings.ToLower(title), "")
	sum := sha256.Sum256([]byte(folded))
	return hex.EncodeToString(sum[:])[:12]
}

func classify(text string) catalog.ChapterType {
	compact := nonAlnumRe.ReplaceAllString(text, "")
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if extraTokens[tok] {
			return catalog.ChapterExtra
		}
		if specialTokens[tok] || seasonTokenRe.MatchString(tok) {
			return catalog.ChapterSpecial
		}
	}
	if strings.Contains(compact, "oneshot") {
		return catalog.ChapterSpecial
	}
	return catalog.ChapterNormal
}

func buildSlug(typ catalog.ChapterType, number *float64, title string) string {
	if number != nil {
		return string(typ) + "-" + CanonicalString(number)
	}
	if strings.TrimSpace(title) != "" {
		return TitleHash(title)
	}
	return string(typ) + "-" + UnknownNumber
}
