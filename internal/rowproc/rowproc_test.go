package rowproc

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/domainresolve/enrich-core/internal/candidate"
	"github.com/domainresolve/enrich-core/internal/legalcrawl"
	"github.com/domainresolve/enrich-core/internal/llmjudge"
	"github.com/domainresolve/enrich-core/internal/ratelimit"
	"github.com/domainresolve/enrich-core/internal/search"
)

type fakeSearch struct {
	byQuery map[string][]candidate.Candidate
	calls   []string
}

func (f *fakeSearch) Name() string { return "fake" }

func (f *fakeSearch) Search(ctx context.Context, query string, locale search.Locale, num int) ([]candidate.Candidate, error) {
	f.calls = append(f.calls, query)
	return f.byQuery[query], nil
}

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

func newTestProcessor(s search.Provider, chat llmjudge.ChatClient) *Processor {
	judge := llmjudge.NewJudge(chat, "gpt-4o-mini")
	crawler := legalcrawl.NewCrawler(nil)
	caps := ratelimit.NewCaps(10, 10, 0)
	return NewProcessor(s, judge, crawler, caps, ratelimit.NewUnhealthy(), DefaultConfig())
}

func TestProcess_AcceptsEntityMatch(t *testing.T) {
	fs := &fakeSearch{byQuery: map[string][]candidate.Candidate{
		"Acme Corp official website": {
			{URL: "https://acmecorp.com", Domain: "acmecorp.com", Title: "Acme Corp - Official Site", Snippet: "Acme Corp homepage"},
		},
	}}
	reply, _ := json.Marshal(map[string]string{
		"chosen_domain": "acmecorp.com", "confidence": "entity", "reason": "exact match",
	})
	p := newTestProcessor(fs, &fakeChat{reply: string(reply)})

	out, err := p.Process(context.Background(), Input{Index: 0, Company: "Acme Corp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.URL != "acmecorp.com" {
		t.Fatalf("expected acmecorp.com, got %q", out.URL)
	}
	if out.ConfidenceScore == "" {
		t.Fatalf("expected a non-empty confidence score")
	}
}

func TestProcess_StopsQueryingOnceEnoughCandidates(t *testing.T) {
	var cands []candidate.Candidate
	for i := 0; i < candidate.MaxPerCompany; i++ {
		d := fmt.Sprintf("example%d.com", i)
		cands = append(cands, candidate.Candidate{URL: "https://" + d, Domain: d})
	}
	fs := &fakeSearch{byQuery: map[string][]candidate.Candidate{
		"Acme Corp official website": cands,
	}}
	reply, _ := json.Marshal(map[string]string{"chosen_domain": "null", "confidence": "null", "reason": "no match"})
	p := newTestProcessor(fs, &fakeChat{reply: string(reply)})

	_, err := p.Process(context.Background(), Input{Index: 0, Company: "Acme Corp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fs.calls) != 1 {
		t.Fatalf("expected query synthesis to stop after the first query once enough candidates accumulate, got %d calls: %v", len(fs.calls), fs.calls)
	}
}

func TestProcess_NullChoiceYieldsEmptyURL(t *testing.T) {
	fs := &fakeSearch{byQuery: map[string][]candidate.Candidate{}}
	reply, _ := json.Marshal(map[string]string{"chosen_domain": "null", "found_domain": "null", "confidence": "null", "reason": "unsure"})
	p := newTestProcessor(fs, &fakeChat{reply: string(reply)})

	out, err := p.Process(context.Background(), Input{Index: 0, Company: "Mystery Inc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.URL != "" {
		t.Fatalf("expected empty URL, got %q", out.URL)
	}
	if out.ConfidenceScore != "" {
		t.Fatalf("expected empty confidence score, got %q", out.ConfidenceScore)
	}
}

func TestProcess_HomonymGuardRejectsUnrelatedDomain(t *testing.T) {
	fs := &fakeSearch{byQuery: map[string][]candidate.Candidate{
		"Totally Unrelated Co official website": {
			{URL: "https://somethingelse.io", Domain: "somethingelse.io", Title: "Something Else", Snippet: "unrelated business"},
		},
	}}
	reply, _ := json.Marshal(map[string]string{"chosen_domain": "somethingelse.io", "confidence": "entity", "reason": "best guess"})
	p := newTestProcessor(fs, &fakeChat{reply: string(reply)})

	out, err := p.Process(context.Background(), Input{Index: 0, Company: "Totally Unrelated Co"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.URL != "" {
		t.Fatalf("expected homonym guard to reject unrelated domain, got %q", out.URL)
	}
}

func TestProcess_LLMTransportErrorPropagates(t *testing.T) {
	fs := &fakeSearch{byQuery: map[string][]candidate.Candidate{}}
	p := newTestProcessor(fs, &fakeChat{err: fmt.Errorf("connection refused")})
	p.Retry = ratelimit.RetryConfig{MaxRetries: 0, BackoffBase: 1.6}

	_, err := p.Process(context.Background(), Input{Index: 0, Company: "Acme Corp"})
	if err == nil {
		t.Fatalf("expected an error for LLM transport failure")
	}
}

func TestProcess_UnhealthySkipsDispatch(t *testing.T) {
	fs := &fakeSearch{byQuery: map[string][]candidate.Candidate{}}
	p := newTestProcessor(fs, &fakeChat{reply: "{}"})
	p.Unhealthy.Set(fmt.Errorf("boom"))

	out, err := p.Process(context.Background(), Input{Index: 0, Company: "Acme Corp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.URL != "" {
		t.Fatalf("expected no-op OutputRow once unhealthy, got %+v", out)
	}
	if len(fs.calls) != 0 {
		t.Fatalf("expected no search calls once unhealthy")
	}
}

func TestBuildQueries_UsesNonRegistrationContextInPrimaryQuery(t *testing.T) {
	fields := []ContextField{
		{Name: "country", Value: "France"},
		{Name: "siren", Value: "123456789", IsRegistration: true},
	}
	qs := buildQueries("Acme Corp", fields)
	if len(qs) != 6 {
		t.Fatalf("expected 6 queries, got %d", len(qs))
	}
	if qs[0] != "Acme Corp France official website" {
		t.Fatalf("expected registration column excluded from primary query, got %q", qs[0])
	}
}

func TestBuildQueries_NoContextFallsBackToPlainQuery(t *testing.T) {
	qs := buildQueries("Acme Corp", nil)
	if qs[0] != "Acme Corp official website" {
		t.Fatalf("expected plain fallback query, got %q", qs[0])
	}
}
