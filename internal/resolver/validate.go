package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/calyptra/serialhub/internal/catalog"
)

var numericIDRe = regexp.MustCompile(`^\d+$`)

// ValidateCandidate checks a chosen candidate before anything is committed.
// A failure here degrades the attempt to "no match"; it never produces a
// partial commit.
func ValidateCandidate(record catalog.MetadataRecord, authoritative catalog.MetadataSource) error {
	if strings.TrimSpace(record.ExternalID) == "" {
		return fmt.Errorf("candidate has no external id")
	}
	if strings.TrimSpace(record.Title) == "" {
		return fmt.Errorf("candidate %s has no title", record.ExternalID)
	}
	if record.Source == authoritative && authoritative == catalog.SourceAniList {
		if !numericIDRe.MatchString(record.ExternalID) {
			return fmt.Errorf("candidate %s lacks a provider-native id", record.ExternalID)
		}
	}
	if record.CoverURL != "" {
		u, err := url.Parse(record.CoverURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("candidate %s has a malformed cover url", record.ExternalID)
		}
	}
	return nil
}

var externalIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`anilist\.co/manga/(\d+)`),
	regexp.MustCompile(`mangadex\.org/title/([0-9a-fA-F-]{36})`),
}

// ExternalIDFromURL extracts a provider external id embedded in a tracked
// source URL, or "" when none is recognizable.
func ExternalIDFromURL(sourceURL string) string {
	for _, re := range externalIDPatterns {
		if m := re.FindStringSubmatch(sourceURL); m != nil {
			return m[1]
		}
	}
	return ""
}
