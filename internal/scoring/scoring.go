// Package scoring implements recovery of a usable domain from an LLM
// proposal, the homonym guard, and the deterministic confidence score.
package scoring

import (
	"context"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/domainresolve/enrich-core/internal/candidate"
	"github.com/domainresolve/enrich-core/internal/llmjudge"
	"github.com/domainresolve/enrich-core/internal/tokenize"
)

// brandAliases maps a normalised (joined, stop-word-stripped) company-name
// token string to the set of domain tokens that corroborate it, for
// well-known brands whose domain doesn't lexically resemble their name.
var brandAliases = map[string]map[string]bool{
	"dassaultsystemes":     {"3ds": true, "3dsexperience": true},
	"reelit":               {"reel": true, "it": true},
	"lefigaroclassifieds":  {"le": true, "figaro": true, "classifieds": true},
}

var urlInText = regexp.MustCompile(`https?://[^\s"'\)]+`)

// Result is the outcome of Recover+Guard+Score for one row.
type Result struct {
	Domain      string // empty if rejected or null
	Score       int    // only meaningful when Domain != ""
	Ambiguity   int
	Confidence  string
	Reason      string
	UsedLLMFound bool
}

// Recover applies the three-step fallback from spec §4.7 to a raw LLM
// proposal, turning chosen_from_url / a URL embedded in reason / an
// off-list found_domain into a usable chosen domain when chosen_domain
// itself is null or unparsable.
func Recover(choice llmjudge.Choice) (domain, confidence, reason string, usedLLMFound bool) {
	domRaw := strings.ToLower(strings.TrimSpace(choice.ChosenDomain))
	confidence = strings.ToLower(strings.TrimSpace(choice.Confidence))
	reason = strings.TrimSpace(choice.Reason)
	srcURL := strings.TrimSpace(choice.ChosenFromURL)
	foundDom := strings.ToLower(strings.TrimSpace(choice.FoundDomain))

	isNull := func(s string) bool { return s == "" || s == "null" || s == "none" }

	if (isNull(domRaw) || tokenize.StripToDomain(domRaw) == "") && srcURL != "" {
		domRaw = tokenize.StripToDomain(srcURL)
	}
	if (isNull(domRaw) || tokenize.StripToDomain(domRaw) == "") && reason != "" {
		if m := urlInText.FindString(reason); m != "" {
			domRaw = tokenize.StripToDomain(m)
		}
	}
	if (isNull(domRaw) || tokenize.StripToDomain(domRaw) == "") && !isNull(foundDom) {
		if d := tokenize.StripToDomain(foundDom); d != "" {
			domRaw = d
			confidence = "entity"
			usedLLMFound = true
			if reason != "" {
				reason = strings.Trim(reason+" | LLM-direct-found", " |")
			} else {
				reason = "LLM-direct-found"
			}
		}
	}
	if isNull(domRaw) {
		return "", confidence, reason, usedLLMFound
	}
	return tokenize.StripToDomain(domRaw), confidence, reason, usedLLMFound
}

// AliasMatch reports whether company matches a fixed brand-alias entry
// whose alias tokens are present in domain's token set.
func AliasMatch(company, domain string) bool {
	cname := tokenize.JoinedNameTokens(company)
	dset := tokenize.DomainTokens(domain)
	if cname == "" || len(dset) == 0 {
		return false
	}
	joined := strings.Join(dset, "")
	dtoks := make(map[string]bool, len(dset))
	for _, t := range dset {
		dtoks[t] = true
	}
	for base, aliases := range brandAliases {
		if !strings.Contains(cname, base) {
			continue
		}
		for alias := range aliases {
			if dtoks[alias] || strings.Contains(joined, alias) {
				return true
			}
		}
	}
	return false
}

// HomonymGuard rejects a proposed domain for company unless a trusted
// confidence label, a brand-alias hit, strong token overlap, or a
// sufficiently high Levenshtein ratio corroborates it.
func HomonymGuard(company, domain, confidence string) bool {
	if confidence == "group" || confidence == "country" {
		return true
	}
	if AliasMatch(company, domain) {
		return true
	}
	if tokenize.StrongTokenOverlap(company, domain) {
		return true
	}
	a := tokenize.JoinedNameTokens(company)
	b := tokenize.JoinedDomainTokens(domain)
	if a == "" || b == "" {
		return false
	}
	ratio := tokenize.LevenshteinRatio(a, b)
	brandTokens := len(tokenize.NameTokens(company))
	if brandTokens <= 2 {
		return ratio >= 0.60
	}
	return ratio >= 0.70
}

// DNSOK resolves host with the given timeout when enabled is true; when
// disabled it always reports reachable, matching ENABLE_DNS_CHECK=false by
// default. Unlike the original implementation's process-global socket
// timeout, this uses a per-call context deadline per spec §9's redesign
// note.
func DNSOK(ctx context.Context, resolver *net.Resolver, enabled bool, domain string, timeout time.Duration) bool {
	if !enabled {
		return true
	}
	host := tokenize.StripToDomain(domain)
	if host == "" {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	_, err := resolver.LookupHost(cctx, host)
	return err == nil
}

// AmbiguityCount counts other candidates that are themselves plausible
// matches for company (Levenshtein ratio ≥0.80 or strong token overlap),
// excluding the chosen domain.
func AmbiguityCount(company string, candidates []candidate.Candidate, chosenDomain string) int {
	a := tokenize.JoinedNameTokens(company)
	chosen := tokenize.StripToDomain(chosenDomain)
	count := 0
	for _, c := range candidates {
		if c.Domain == "" {
			continue
		}
		if chosenDomain != "" && tokenize.StripToDomain(c.Domain) == chosen {
			continue
		}
		b := tokenize.JoinedDomainTokens(c.Domain)
		sim := tokenize.LevenshteinRatio(a, b)
		overlap := tokenize.StrongTokenOverlap(company, c.Domain)
		if sim >= 0.80 || overlap {
			count++
		}
	}
	return count
}

// ContextTokens extracts the ≥3-char name tokens from context values whose
// column belongs to the DESCRIPTION, SECTOR, or LOCATION buckets.
func ContextTokens(ctxBuckets map[string]string, isWantedBucket func(columnLower string) bool) map[string]bool {
	want := map[string]bool{}
	for k, v := range ctxBuckets {
		if !isWantedBucket(strings.ToLower(k)) {
			continue
		}
		for _, t := range tokenize.NameTokens(v) {
			if len([]rune(t)) >= 3 {
				want[t] = true
			}
		}
	}
	return want
}

// ContextMatchEffect computes the context-miss penalty (capped at 12),
// skipped entirely (returning 0) when company and chosen already have
// strong token overlap.
func ContextMatchEffect(company string, want map[string]bool, chosenDomain, title, snippet string) int {
	if chosenDomain == "" {
		return 0
	}
	if tokenize.StrongTokenOverlap(company, chosenDomain) {
		return 0
	}
	if len(want) == 0 {
		return 0
	}
	hay := strings.ToLower(title + " " + snippet)
	hits := 0
	for t := range want {
		if strings.Contains(hay, t) {
			hits++
		}
	}
	missRatio := 1.0 - float64(hits)/float64(len(want))
	penalty := 12.0 * missRatio
	if penalty > 12 {
		penalty = 12
	}
	return roundHalfAwayFromZero(penalty)
}

// ContextPositiveBonus awards +10/+5/0 for ≥2/1/0 context-token hits.
func ContextPositiveBonus(want map[string]bool, chosenDomain, title, snippet string) int {
	if chosenDomain == "" || len(want) == 0 {
		return 0
	}
	hay := strings.ToLower(title + " " + snippet)
	hits := 0
	for t := range want {
		if strings.Contains(hay, t) {
			hits++
		}
	}
	switch {
	case hits >= 2:
		return 10
	case hits == 1:
		return 5
	default:
		return 0
	}
}

var confidenceBase = map[string]int{"entity": 95, "country": 78, "group": 65, "null": 50}

// Score computes the clamped confidence score for an accepted proposal.
// candidateCount is len(candidates) before the MaxPerCompany cap is
// applied for the "total considered" divisor.
func Score(confidence string, ambiguity, candidateCount int, company string, usedLLMFound bool, ctxPenalty, ctxBonus int) int {
	base, ok := confidenceBase[confidence]
	if !ok {
		base = confidenceBase["null"]
	}
	considered := candidateCount
	if considered > candidate.MaxPerCompany {
		considered = candidate.MaxPerCompany
	}
	if considered < 1 {
		considered = 1
	}
	ambRatio := float64(ambiguity) / float64(considered)
	if ambRatio > 1 {
		ambRatio = 1
	}
	brandTokens := len(tokenize.NameTokens(company))
	ambCap := 12.0
	if brandTokens > 2 {
		ambCap = 20.0
	}
	ambPenalty := roundHalfAwayFromZero(ambCap * ambRatio)

	score := base - ambPenalty - ctxPenalty + ctxBonus
	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}
	if usedLLMFound && score < 75 {
		score = 75
	}
	return score
}

func roundHalfAwayFromZero(f float64) int {
	if f >= 0 {
		return int(f + 0.5)
	}
	return -int(-f + 0.5)
}
