package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/domainresolve/enrich-core/internal/candidate"
	"github.com/rs/zerolog"
)

const serperSearchURL = "https://google.serper.dev/search"

// StatusError carries a non-2xx HTTP status returned by the search
// backend, so callers can classify it with ratelimit.RetryableStatus
// before deciding whether to retry.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search: non-200 response: %d", e.Status)
}

// SerperProvider queries Google results through the Serper API.
type SerperProvider struct {
	apiKey string
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewSerperProvider builds a Serper-backed Provider. client must not be nil;
// callers typically share one high-throughput client across providers.
func NewSerperProvider(apiKey string, client *http.Client, log zerolog.Logger) *SerperProvider {
	return &SerperProvider{
		apiKey: apiKey,
		url:    serperSearchURL,
		client: client,
		log:    log.With().Str("component", "search.serper").Logger(),
	}
}

// Name implements Provider.
func (p *SerperProvider) Name() string { return "serper" }

type serperRequest struct {
	Q  string `json:"q"`
	Num int   `json:"num"`
	GL string `json:"gl,omitempty"`
	HL string `json:"hl,omitempty"`
}

type serperOrganic struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type serperResponse struct {
	Organic []serperOrganic `json:"organic"`
}

// Search issues one Serper search call and returns filtered candidates.
// num is clamped to [1,100]. A non-200 response returns a *StatusError so
// the caller can retry {429,500,502,503,504} per spec §5; a 200 response
// that cannot be parsed into the expected shape yields an empty, non-error
// result instead, since retrying an unparsable body would not help.
func (p *SerperProvider) Search(ctx context.Context, query string, locale Locale, num int) ([]candidate.Candidate, error) {
	if num < 1 {
		num = 1
	}
	if num > 100 {
		num = 100
	}
	reqBody := serperRequest{Q: query, Num: num, GL: locale.GL, HL: locale.HL}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("search: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("search: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		p.log.Warn().Int("status", resp.StatusCode).Str("query", query).Msg("serper non-200 response")
		return nil, &StatusError{Status: resp.StatusCode}
	}

	var parsed serperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		p.log.Warn().Err(err).Str("query", query).Msg("serper response shape mismatch")
		return nil, nil
	}

	raw := make([]candidate.RawResult, 0, len(parsed.Organic))
	for _, o := range parsed.Organic {
		raw = append(raw, candidate.RawResult{Link: o.Link, Title: o.Title, Snippet: o.Snippet})
	}
	return candidate.Filter(raw), nil
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

func containsToken(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
