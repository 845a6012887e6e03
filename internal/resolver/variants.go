package resolver

import (
	"regexp"
	"strings"
)

var (
	bracketRe        = regexp.MustCompile(`\s*[(\[{][^)\]}]*[)\]}]\s*`)
	leadingArticleRe = regexp.MustCompile(`(?i)^(?:the|a|an)\s+`)
	trailingVolumeRe = regexp.MustCompile(`(?i)[\s,:-]*(?:vol(?:ume)?\.?\s*\d+|v\d+)\s*$`)
	formatSuffixRe   = regexp.MustCompile(`(?i)[\s,:-]+(?:manga|manhwa|manhua|webtoon|comic|novel|light novel)\s*$`)
	spaceRe          = regexp.MustCompile(`\s+`)
)

// TitleVariants derives alternate search titles from the entry title:
// bracketed annotations stripped, format suffixes dropped, leading articles
// removed, and trailing volume numbers cut. The original title is not
// included; variants identical to it (or to each other) are deduplicated.
func TitleVariants(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	seen := map[string]bool{clean(title): true}
	var out []string
	add := func(v string) {
		v = clean(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	noBrackets := bracketRe.ReplaceAllString(title, " ")
	add(noBrackets)
	add(formatSuffixRe.ReplaceAllString(noBrackets, ""))
	add(leadingArticleRe.ReplaceAllString(noBrackets, ""))
	add(trailingVolumeRe.ReplaceAllString(noBrackets, ""))

	// Fully reduced form, applying every rewrite at once. Volume numbers go
	// before format suffixes so "… Manga Vol. 3" reduces all the way down.
	reduced := noBrackets
	reduced = trailingVolumeRe.ReplaceAllString(reduced, "")
	reduced = formatSuffixRe.ReplaceAllString(reduced, "")
	reduced = leadingArticleRe.ReplaceAllString(reduced, "")
	add(reduced)

	return out
}

func clean(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
