package rowproc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/domainresolve/enrich-core/internal/candidate"
	"github.com/domainresolve/enrich-core/internal/llmjudge"
	"github.com/domainresolve/enrich-core/internal/ratelimit"
	"github.com/domainresolve/enrich-core/internal/search"
)

// nonRegFragments returns up to 3 non-empty context values, in input
// column order, from columns classified outside the REGISTRATION bucket.
func nonRegFragments(fields []ContextField) []string {
	var out []string
	for _, f := range fields {
		if len(out) >= 3 {
			break
		}
		v := strings.TrimSpace(f.Value)
		if v == "" {
			continue
		}
		if f.IsRegistration {
			continue
		}
		out = append(out, v)
	}
	return out
}

// buildQueries returns the fixed 6-query sequence tried in order until
// enough unique-domain candidates accumulate.
func buildQueries(company string, fields []ContextField) []string {
	company = strings.TrimSpace(company)
	frags := nonRegFragments(fields)

	var primary string
	if len(frags) > 0 {
		primary = fmt.Sprintf("%s %s official website", company, strings.Join(frags, " "))
	} else {
		primary = company + " official website"
	}

	return []string{
		primary,
		company + " website",
		fmt.Sprintf("%q website", company),
		fmt.Sprintf("%q official website", company),
		company + " site web",
		company + " site officiel",
	}
}

const targetCandidates = candidate.MaxPerCompany

// gatherCandidates runs the query sequence against the search provider,
// stopping as soon as targetCandidates unique domains have accumulated,
// merging results from every query tried. A search transport error from
// the underlying provider is swallowed here (the row falls back to
// whatever candidates were already collected) since search failures are
// not class-3 infrastructure failures per spec §7.
func (p *Processor) gatherCandidates(ctx context.Context, company string, fields []ContextField, ctxMap map[string]string) ([]candidate.Candidate, error) {
	locale := search.GuessLocale(ctxMap)
	queries := buildQueries(company, fields)

	seen := make(map[string]bool)
	var out []candidate.Candidate

	for _, q := range queries {
		if len(out) >= targetCandidates {
			break
		}
		results, err := p.searchOne(ctx, q, locale)
		if err != nil {
			continue
		}
		for _, c := range results {
			if seen[c.Domain] {
				continue
			}
			seen[c.Domain] = true
			out = append(out, c)
			if len(out) >= targetCandidates {
				break
			}
		}
	}
	return out, nil
}

func (p *Processor) searchOne(ctx context.Context, query string, locale search.Locale) ([]candidate.Candidate, error) {
	key := searchKey{Query: query, GL: locale.GL, HL: locale.HL, Num: p.Config.SearchResultsPerCall, Page: 1}
	if cached, ok := p.searchCache.get(key); ok {
		return cached, nil
	}

	var results []candidate.Candidate
	err := ratelimit.Do(ctx, p.Retry, isRetryableSearchErr, func(ctx context.Context) error {
		release, err := p.Caps.AcquireSearch(ctx)
		if err != nil {
			return err
		}
		defer release()
		r, err := p.Search.Search(ctx, query, locale, p.Config.SearchResultsPerCall)
		if err != nil {
			return err
		}
		results = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.searchCache.put(key, results)
	return results, nil
}

// isRetryableSearchErr classifies a *search.StatusError against the
// {429,500,502,503,504} retry set; any other error (a transport failure,
// a context deadline) is treated as retryable.
func isRetryableSearchErr(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *search.StatusError
	if errors.As(err, &statusErr) {
		return ratelimit.RetryableStatus(statusErr.Status)
	}
	return true
}

// isRetryableLLMErr classifies go-openai's typed HTTP errors against the
// {429,500,502,503,504} retry set, so a non-retryable 4xx (bad request,
// auth failure) returns immediately instead of burning MAX_RETRIES.
func isRetryableLLMErr(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ratelimit.RetryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ratelimit.RetryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

// callJudge acquires the LLM concurrency slot, retries transient
// failures, and invokes the judge. A non-nil error here is a class-3 LLM
// infrastructure failure the caller must treat as grounds to mark the
// batch unhealthy.
func (p *Processor) callJudge(ctx context.Context, index int, company string, ctxMap map[string]string, candidates []candidate.Candidate) (llmjudge.Choice, error) {
	result, err := p.LLMBreaker.Execute(func() (interface{}, error) {
		var choice llmjudge.Choice
		err := ratelimit.Do(ctx, p.Retry, isRetryableLLMErr, func(ctx context.Context) error {
			release, err := p.Caps.AcquireLLM(ctx)
			if err != nil {
				return err
			}
			defer release()
			c, err := p.Judge.Choose(ctx, index, company, ctxMap, candidates)
			if err != nil {
				return err
			}
			choice = c
			return nil
		})
		return choice, err
	})
	if err != nil {
		return llmjudge.Choice{}, err
	}
	return result.(llmjudge.Choice), nil
}
