// Package rowproc orchestrates one input row through candidate generation,
// LLM judgement, scoring, and optional registration-based override.
package rowproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/domainresolve/enrich-core/internal/candidate"
	"github.com/domainresolve/enrich-core/internal/legalcrawl"
	"github.com/domainresolve/enrich-core/internal/llmjudge"
	"github.com/domainresolve/enrich-core/internal/ratelimit"
	"github.com/domainresolve/enrich-core/internal/registration"
	"github.com/domainresolve/enrich-core/internal/scoring"
	"github.com/domainresolve/enrich-core/internal/search"
)

func dnsTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = 3
	}
	return time.Duration(seconds) * time.Second
}

// Config bundles the per-service tunables from spec §6's configuration
// table that rowproc itself consumes.
type Config struct {
	MaxCandidatesPerCompany int
	SearchResultsPerCall    int
	EnableDNSCheck          bool
	DNSTimeoutSeconds       int
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{MaxCandidatesPerCompany: candidate.MaxPerCompany, SearchResultsPerCall: 12, EnableDNSCheck: false, DNSTimeoutSeconds: 3}
}

// Processor runs the per-row pipeline: query synthesis, search,
// LLM choose, recovery/guard/score, and registration override.
type Processor struct {
	Search     search.Provider
	Judge      *llmjudge.Judge
	Crawler    *legalcrawl.Crawler
	Caps       *ratelimit.Caps
	Retry      ratelimit.RetryConfig
	Unhealthy  *ratelimit.Unhealthy
	LLMBreaker *gobreaker.CircuitBreaker
	Config     Config

	searchCache *searchCache
	llmCache    *llmCache
}

// NewProcessor builds a Processor with fresh, empty caches and a circuit
// breaker that trips Unhealthy after repeated LLM infrastructure failures.
func NewProcessor(s search.Provider, judge *llmjudge.Judge, crawler *legalcrawl.Crawler, caps *ratelimit.Caps, unhealthy *ratelimit.Unhealthy, cfg Config) *Processor {
	return &Processor{
		Search:      s,
		Judge:       judge,
		Crawler:     crawler,
		Caps:        caps,
		Retry:       ratelimit.DefaultRetryConfig(),
		Unhealthy:   unhealthy,
		LLMBreaker:  ratelimit.NewLLMBreaker("openai-judge", unhealthy),
		Config:      cfg,
		searchCache: newSearchCache(),
		llmCache:    newLLMCache(),
	}
}

// OutputRow is the set of auxiliary fields rowproc computes per row. The
// caller merges these into the row's output columns alongside the
// untouched input columns.
type OutputRow struct {
	URL               string
	ConfidenceScore   string // empty when URL is empty, else an integer string
	Ambiguity         int
	CandCount         int
	RegMatch          string // "yes" or "no"
	RegIDsFound       string // ";"-joined sorted union
	Debug             string // JSON {"chosen_obj_title":..., "chosen_obj_snippet":...}
	FoundDomain       string
}

// Input is everything about one row the processor needs, already resolved
// by the batch driver: the company name and its context columns in input
// order (so query synthesis reproduces the source row's column order).
type Input struct {
	Index   int
	Company string
	Context []ContextField
}

// ContextField is one (column, value) pair from a row's detected context
// columns; Value may be empty, and empty values add nothing to queries,
// scoring tokens, or expected registration identifiers. The
// caller (the batch driver) classifies each column's bucket once per
// batch and stamps the result here, so rowproc never needs to know the
// column-bucket keyword tables itself.
type ContextField struct {
	Name             string
	Value            string
	IsRegistration   bool
	IsScoringContext bool
}

func (in Input) contextMap() map[string]string {
	m := make(map[string]string, len(in.Context))
	for _, f := range in.Context {
		m[f.Name] = f.Value
	}
	return m
}

// Process runs the full per-row pipeline. It never returns an error for a
// row-local logical rejection (spec §7 class 4) — those end with an empty
// OutputRow.URL. It returns an error only for a class-3 LLM infrastructure
// failure, in which case the caller must set the unhealthy flag (Process
// itself sets it only through the Processor's LLM circuit breaker, once
// three consecutive judge calls have failed).
func (p *Processor) Process(ctx context.Context, in Input) (OutputRow, error) {
	if p.Unhealthy != nil && p.Unhealthy.IsSet() {
		return OutputRow{}, nil
	}

	ctxMap := in.contextMap()
	candidates, err := p.gatherCandidates(ctx, in.Company, in.Context, ctxMap)
	if err != nil {
		return OutputRow{}, nil
	}

	key := llmCacheKey(in.Company, ctxMap, candidates)
	choice, ok := p.llmCache.get(key)
	if !ok {
		c, err := p.callJudge(ctx, in.Index, in.Company, ctxMap, candidates)
		if err != nil {
			return OutputRow{}, fmt.Errorf("rowproc: llm choose: %w", err)
		}
		choice = c
		p.llmCache.put(key, choice)
	}

	domain, confidence, reason, usedLLMFound := scoring.Recover(choice)

	var (
		finalDomain string
		numericScore int
		hasScore     bool
		ambiguity    int
		chosen       candidate.Candidate
	)

	if domain != "" {
		chosen = findCandidate(candidates, domain)
		rejected := !scoring.DNSOK(ctx, nil, p.Config.EnableDNSCheck, domain, dnsTimeout(p.Config.DNSTimeoutSeconds)) ||
			!scoring.HomonymGuard(in.Company, domain, confidence)
		if !rejected {
			finalDomain = domain
			ambiguity = scoring.AmbiguityCount(in.Company, candidates, domain)
			want := scoring.ContextTokens(scoringContextMap(in.Context), func(string) bool { return true })
			ctxPenalty := scoring.ContextMatchEffect(in.Company, want, finalDomain, chosen.Title, chosen.Snippet)
			ctxBonus := scoring.ContextPositiveBonus(want, finalDomain, chosen.Title, chosen.Snippet)
			numericScore = scoring.Score(confidence, ambiguity, len(candidates), in.Company, usedLLMFound, ctxPenalty, ctxBonus)
			hasScore = true
		}
	}

	regMatch := "no"
	regIDsFound := ""
	expected := expectedRegistration(in.Context)
	if expected.Any() && (len(candidates) > 0 || finalDomain != "") {
		extra := ""
		if finalDomain != "" && findCandidate(candidates, finalDomain).Domain == "" {
			extra = finalDomain
		}
		if best, bestDomain, ok := p.registrationOverride(ctx, candidates, extra, expected); ok {
			finalDomain = bestDomain
			numericScore = 100
			hasScore = true
			confidence = "entity"
			regMatch = "yes"
			regIDsFound = strings.Join(best.SortedUnion(), ";")
			if reason == "" {
				reason = "registration-match"
			}
		}
	}

	out := OutputRow{
		URL:         finalDomain,
		Ambiguity:   ambiguity,
		CandCount:   len(candidates),
		RegMatch:    regMatch,
		RegIDsFound: regIDsFound,
		FoundDomain: cleanFoundDomain(choice.FoundDomain),
	}
	if hasScore {
		out.ConfidenceScore = itoa(numericScore)
	}
	debugBytes, _ := json.Marshal(map[string]string{"chosen_obj_title": chosen.Title, "chosen_obj_snippet": chosen.Snippet})
	out.Debug = string(debugBytes)
	return out, nil
}

func cleanFoundDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "null" || s == "none" || s == "" {
		return ""
	}
	return s
}

func findCandidate(candidates []candidate.Candidate, domain string) candidate.Candidate {
	for _, c := range candidates {
		if c.Domain == domain {
			return c
		}
	}
	return candidate.Candidate{}
}

func expectedRegistration(fields []ContextField) registration.Set {
	cols := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.IsRegistration {
			cols[f.Name] = f.Value
		}
	}
	return registration.ExpectedFromColumns(cols)
}

func scoringContextMap(fields []ContextField) map[string]string {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.IsScoringContext {
			m[f.Name] = f.Value
		}
	}
	return m
}

// registrationOverride crawls the top-N candidates (plus extra, when
// non-empty, after them) in parallel, then scans the completed results in
// original candidate order so "first candidate-order match wins" stays
// deterministic regardless of which crawl finishes first.
func (p *Processor) registrationOverride(ctx context.Context, candidates []candidate.Candidate, extra string, expected registration.Set) (registration.Set, string, bool) {
	max := p.Config.MaxCandidatesPerCompany
	if max <= 0 {
		max = candidate.MaxPerCompany
	}
	domains := make([]string, 0, max+1)
	for i := 0; i < len(candidates) && i < max; i++ {
		domains = append(domains, candidates[i].Domain)
	}
	if extra != "" {
		domains = append(domains, extra)
	}
	n := len(domains)
	if n == 0 {
		return registration.Set{}, "", false
	}

	results := make([]legalcrawl.Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		dom := domains[i]
		if dom == "" {
			continue
		}
		i, dom := i, dom
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.Crawler.CrawlDomain(ctx, dom)
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if registration.Match(expected, results[i].Found) {
			return results[i].Found, results[i].Domain, true
		}
	}
	return registration.Set{}, "", false
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
