// Package tokenize normalizes company names and domains into comparable
// token sets and measures string similarity between them.
package tokenize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// genericTokens are legal-form suffixes and other low-signal words dropped
// from both company-name and domain token sets. hub/one are explicit
// exceptions and must never appear here.
var genericTokens = map[string]bool{
	"group": true, "holding": true, "holdings": true, "company": true, "co": true,
	"inc": true, "llc": true, "ltd": true, "plc": true, "sa": true, "sas": true,
	"sasu": true, "spa": true, "gmbh": true, "bv": true, "nv": true, "oy": true,
	"ab": true, "ag": true, "kg": true, "srl": true, "sl": true, "ltda": true,
	"pte": true, "pty": true, "limited": true, "corp": true, "corporation": true,
	"international": true, "global": true, "solutions": true, "services": true,
	"consulting": true, "recruitment": true, "recruiting": true, "partners": true,
	"management": true, "systems": true, "technologies": true, "technology": true,
	"tech": true, "digital": true,
}

// subdomainStop lists subdomain labels dropped before tokenizing a domain.
var subdomainStop = map[string]bool{
	"www": true, "m": true, "en": true, "fr": true, "de": true, "es": true,
	"it": true, "nl": true, "pt": true, "pl": true, "jp": true,
}

// gluePat splits a token ending in one of a fixed set of suffixes into a
// root and that suffix, e.g. "systemesgroupe" -> "systemes", "groupe".
var gluePat = regexp.MustCompile(`^(.*?)(it|ai|data|group|groupe|sante|santé|labs)$`)

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
var wwwPrefix = regexp.MustCompile(`^www\d*\.`)

// StripToDomain lowercases a URL or bare host and strips scheme, path, and
// any leading www/www1/www2/... label.
func StripToDomain(u string) string {
	s := strings.ToLower(strings.TrimSpace(u))
	if strings.Contains(s, "://") {
		if idx := strings.Index(s, "://"); idx >= 0 {
			s = s[idx+3:]
		}
	}
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "@"); idx >= 0 {
		s = s[idx+1:]
	}
	s = wwwPrefix.ReplaceAllString(s, "")
	return s
}

// asciiLower NFD-decomposes s and drops combining marks before lowercasing,
// so "Société" and "Societe" tokenize identically.
func asciiLower(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// NameTokens normalizes a company name into a deduplicated-by-filter,
// order-preserving slice of lowercase alphanumeric tokens with legal-form
// suffixes removed.
func NameTokens(name string) []string {
	n := nonAlnumRun.ReplaceAllString(asciiLower(name), " ")
	fields := strings.Fields(n)
	out := make([]string, 0, len(fields))
	for _, t := range fields {
		if !genericTokens[t] {
			out = append(out, t)
		}
	}
	return out
}

// DomainTokens extracts the registrable SLD plus any non-stopword subdomain
// labels from a domain, applies the glue-suffix split, and drops generic
// tokens.
func DomainTokens(domain string) []string {
	host := StripToDomain(domain)
	sld, sub := splitRegistrable(host)

	var toks []string
	for _, t := range splitHyphenDotUnderscore(sld) {
		if t != "" {
			toks = append(toks, t)
		}
	}
	if sub != "" {
		for _, t := range splitHyphenDotUnderscore(sub) {
			if t != "" && !subdomainStop[t] {
				toks = append(toks, t)
			}
		}
	}

	expanded := make([]string, 0, len(toks))
	for _, t := range toks {
		if m := gluePat.FindStringSubmatch(t); m != nil && m[1] != "" {
			expanded = append(expanded, m[1], m[2])
		} else {
			expanded = append(expanded, t)
		}
	}

	out := make([]string, 0, len(expanded))
	for _, t := range expanded {
		if t != "" && !genericTokens[t] {
			out = append(out, t)
		}
	}
	return out
}

func splitHyphenDotUnderscore(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
}

// splitRegistrable returns the registrable-domain label (SLD) and any
// leading subdomain portion of host, using the public suffix list. On
// parse failure it falls back to treating everything before the first dot
// as the SLD with no subdomain.
func splitRegistrable(host string) (sld, sub string) {
	dn, err := publicsuffix.Parse(host)
	if err != nil || dn == nil || dn.SLD == "" {
		parts := strings.SplitN(host, ".", 2)
		return parts[0], ""
	}
	return strings.ToLower(dn.SLD), strings.ToLower(dn.TRD)
}

// JoinedNameTokens / JoinedDomainTokens concatenate a token slice with no
// separator, matching the Levenshtein-distance inputs used for the
// homonym guard and ambiguity counting.
func JoinedNameTokens(name string) string   { return strings.Join(NameTokens(name), "") }
func JoinedDomainTokens(domain string) string { return strings.Join(DomainTokens(domain), "") }

// LevenshteinRatio computes 1 - editDistance/max(len(a),len(b)) using a
// classic O(|a|*|b|) dynamic program with two rolling rows. Equal strings
// (including two empty strings) score 1.0; if exactly one is empty the
// score is 0.0.
func LevenshteinRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	cur := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	dist := prev[lb]
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	ratio := 1.0 - float64(dist)/float64(maxLen)
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// StrongTokenOverlap reports whether a company's name tokens and a
// domain's tokens share at least one token, or one token set is a subset
// of the other.
func StrongTokenOverlap(company, domain string) bool {
	nt := toSet(NameTokens(company))
	dt := toSet(DomainTokens(domain))
	if len(nt) == 0 || len(dt) == 0 {
		return false
	}
	for t := range nt {
		if dt[t] {
			return true
		}
	}
	return isSubset(nt, dt) || isSubset(dt, nt)
}

func toSet(toks []string) map[string]bool {
	m := make(map[string]bool, len(toks))
	for _, t := range toks {
		m[t] = true
	}
	return m
}

func isSubset(a, b map[string]bool) bool {
	for t := range a {
		if !b[t] {
			return false
		}
	}
	return true
}
