package llmjudge

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/domainresolve/enrich-core/internal/candidate"
)

type fakeChat struct {
	reply string
	err   error
}

func (f fakeChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func TestParseChoice_WellFormedObject(t *testing.T) {
	c := parseChoice(`{"index":0,"company":"Acme","chosen_domain":"acme.com","chosen_from_url":"https://acme.com/","found_domain":"null","confidence":"entity","reason":"exact match"}`)
	if c.ChosenDomain != "acme.com" {
		t.Fatalf("expected chosen_domain acme.com, got %q", c.ChosenDomain)
	}
	if c.Confidence != "entity" {
		t.Fatalf("expected confidence entity, got %q", c.Confidence)
	}
	if c.Reason != "exact match" {
		t.Fatalf("unexpected reason %q", c.Reason)
	}
}

func TestParseChoice_CodeFencedObject(t *testing.T) {
	c := parseChoice("```json\n{\"chosen_domain\":\"acme.com\",\"found_domain\":\"null\",\"confidence\":\"entity\",\"reason\":\"ok\"}\n```")
	if c.ChosenDomain != "acme.com" {
		t.Fatalf("expected fenced object to parse, got %q", c.ChosenDomain)
	}
}

func TestParseChoice_ChosenURLSynonym(t *testing.T) {
	c := parseChoice(`{"chosen_domain":"acme.com","chosen_url":"https://acme.com/about","found_domain":"null","confidence":"entity"}`)
	if c.ChosenFromURL != "https://acme.com/about" {
		t.Fatalf("expected chosen_url synonym to fill ChosenFromURL, got %q", c.ChosenFromURL)
	}
}

func TestParseChoice_MalformedTextYieldsParseFail(t *testing.T) {
	c := parseChoice("not json at all")
	if c.ChosenDomain != "null" || c.FoundDomain != "null" || c.Confidence != "null" {
		t.Fatalf("expected null defaults, got %+v", c)
	}
	if c.Reason != "openai-parse-fail" {
		t.Fatalf("expected openai-parse-fail reason, got %q", c.Reason)
	}
}

func TestParseChoice_MissingFieldsDefaultIndependently(t *testing.T) {
	c := parseChoice(`{"chosen_domain":"acme.com"}`)
	if c.ChosenDomain != "acme.com" {
		t.Fatalf("expected chosen_domain preserved, got %q", c.ChosenDomain)
	}
	if c.FoundDomain != "null" {
		t.Fatalf("expected missing found_domain to default to null, got %q", c.FoundDomain)
	}
	if c.Confidence != "null" {
		t.Fatalf("expected missing confidence to default to null, got %q", c.Confidence)
	}
}

func TestChoose_ReturnsParsedChoice(t *testing.T) {
	j := NewJudge(fakeChat{reply: `{"chosen_domain":"acme.com","found_domain":"null","confidence":"entity","reason":"ok"}`}, "gpt-4o-mini")
	choice, err := j.Choose(context.Background(), 0, "Acme Inc", map[string]string{"country": "US"}, []candidate.Candidate{
		{URL: "https://acme.com", Domain: "acme.com", Title: "Acme", Snippet: "Acme homepage"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if choice.ChosenDomain != "acme.com" {
		t.Fatalf("expected acme.com, got %q", choice.ChosenDomain)
	}
}

func TestChoose_TransportErrorPropagates(t *testing.T) {
	j := NewJudge(fakeChat{err: errors.New("boom")}, "gpt-4o-mini")
	_, err := j.Choose(context.Background(), 0, "Acme Inc", nil, nil)
	if err == nil {
		t.Fatalf("expected transport error to propagate")
	}
}

func TestPreflight_NoChoicesIsError(t *testing.T) {
	j := NewJudge(fakeChat{reply: ""}, "gpt-4o-mini")
	// fakeChat always returns one choice with the given content, so fabricate
	// a client that returns zero choices directly.
	j.Client = zeroChoiceChat{}
	if err := j.Preflight(context.Background()); err == nil {
		t.Fatalf("expected error when preflight gets no choices")
	}
}

type zeroChoiceChat struct{}

func (zeroChoiceChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestSafeJSON_DropsNullLikeValues(t *testing.T) {
	for _, v := range []string{"", "nan", "NaN", "none", "None", "null", "NULL"} {
		if safeJSON(v) != "" {
			t.Fatalf("expected safeJSON(%q) to be empty, got %q", v, safeJSON(v))
		}
	}
	if safeJSON("France") != "France" {
		t.Fatalf("expected safeJSON to preserve real values")
	}
}
