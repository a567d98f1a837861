// Package candidate filters and normalizes raw search results into the
// Candidate shape the rest of the pipeline consumes.
package candidate

import (
	"strings"

	"github.com/domainresolve/enrich-core/internal/tokenize"
)

const (
	// TitleLimit and SnippetLimit are code-point caps applied when building
	// candidates from raw search results and when building LLM prompts.
	TitleLimit   = 90
	SnippetLimit = 180

	// MaxPerCompany is the default cap on candidates handed to the LLM and
	// considered by scoring. Configurable via MAX_CANDIDATES_PER_COMPANY.
	MaxPerCompany = 8
)

// Candidate is a filtered, truncated search hit.
type Candidate struct {
	URL     string
	Domain  string
	Title   string
	Snippet string
}

// blockedHostParts lists substrings that disqualify a host: social
// networks, aggregators, news, and encyclopedic sites.
var blockedHostParts = []string{
	"linkedin.com", "facebook.com", "instagram.com", "twitter.com", "x.com",
	"youtube.com", "tiktok.com", "wikipedia.org", "wikidata.org",
	"crunchbase.com", "rocketreach.co", "apollo.io", "zoominfo.com",
	"glassdoor", "indeed", "ycombinator.com", "angel.co", "medium.com",
	"blogspot", "news.",
}

// RawResult is the shape of a single search-provider hit before filtering.
// Link/URL/FormattedURL mirrors the three field names the upstream search
// API may use for a result's address.
type RawResult struct {
	Link         string
	URL          string
	FormattedURL string
	Title        string
	Snippet      string
	Description  string
}

// Filter drops blocked hosts and duplicate domains (keeping the first
// occurrence, in input order) and truncates title/snippet to their limits.
func Filter(raw []RawResult) []Candidate {
	seen := make(map[string]bool, len(raw))
	out := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		link := firstNonEmpty(r.Link, r.URL, r.FormattedURL)
		host := tokenize.StripToDomain(link)
		if host == "" {
			continue
		}
		if isBlocked(host) {
			continue
		}
		if seen[host] {
			continue
		}
		seen[host] = true
		title := truncateRunes(r.Title, TitleLimit)
		snippet := truncateRunes(firstNonEmpty(r.Snippet, r.Description), SnippetLimit)
		out = append(out, Candidate{URL: link, Domain: host, Title: title, Snippet: snippet})
	}
	return out
}

func isBlocked(host string) bool {
	for _, bad := range blockedHostParts {
		if strings.Contains(host, bad) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
