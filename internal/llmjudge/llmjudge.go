// Package llmjudge asks a chat-completion model to pick the official domain
// for a company out of a candidate list, tolerantly parsing its reply.
package llmjudge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/domainresolve/enrich-core/internal/candidate"
)

// ChatClient abstracts the OpenAI client dependency for testability.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Choice is the model's proposal for one company, tolerantly parsed: every
// field defaults rather than erroring when the model's JSON is malformed.
type Choice struct {
	ChosenDomain   string
	ChosenFromURL  string
	FoundDomain    string
	Confidence     string // entity | country | group | null
	Reason         string
}

const (
	systemInstruction = "You will receive one company name with optional context (country/city, industry/sector, description, LinkedIn hints) " +
		"and a list of web-search candidate URLs.\n\n" +
		"Choose the OFFICIAL domain using these rules:\n" +
		"- Priority 1: The exact legal entity's domain.\n" +
		"- Priority 2: Localized/country domains for the brand when relevant.\n" +
		"- Priority 3: Global/parent domain when relevant.\n" +
		"- If no candidate clearly matches but you can confidently identify the official website from your own knowledge or the context, OUTPUT that domain in 'found_domain'.\n" +
		"- Use the description and context fields to ensure the domain aligns with the activity.\n" +
		"- If still uncertain, set chosen_domain and found_domain to \"null\" and give a short reason.\n\n" +
		"Return ONE JSON object with keys: {index, company, chosen_domain, chosen_from_url, found_domain, confidence ∈ [entity,country,group,null], reason}.\n" +
		"Notes:\n" +
		"- 'chosen_domain' must be from the provided candidates (normalize if needed). Fill 'chosen_from_url' with the URL actually chosen.\n" +
		"- 'found_domain' is for a confident domain you know that is NOT in the candidates."

	strictReturnInstruction = "Return ONLY a single JSON object (no prose, no code fences). " +
		"Keys: index, company, chosen_domain, chosen_from_url, found_domain, confidence, reason. " +
		"Confidence must be one of: entity, country, group, null. " +
		"If unsure, set chosen_domain and found_domain to \"null\". Do not add extra keys."
)

var (
	codeFence   = regexp.MustCompile("(?s)^```(?:json)?\\s*|\\s*```$")
	firstObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// Judge wraps an OpenAI-compatible chat client with the prompt, parsing, and
// preflight contract this package needs.
type Judge struct {
	Client ChatClient
	Model  string
}

// NewJudge builds a Judge for the given model.
func NewJudge(client ChatClient, model string) *Judge {
	return &Judge{Client: client, Model: model}
}

// Preflight issues a trivial chat call and reports whether the endpoint is
// reachable and returns a shape the batch driver can trust. A failure here
// is a class-3 LLM infrastructure failure per spec §7.
func (j *Judge) Preflight(ctx context.Context) error {
	resp, err := j.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.Model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: `Reply with only this JSON: {"ok":true}`},
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
	})
	if err != nil {
		return fmt.Errorf("llmjudge: preflight: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("llmjudge: preflight returned no choices")
	}
	return nil
}

// Choose builds the candidate-list prompt for one company and returns the
// model's parsed proposal. Any non-200/transport error is returned to the
// caller wrapped with %w (the caller is expected to treat it as a class-3
// failure and set the unhealthy flag); a malformed reply body instead
// yields a null Choice with reason "openai-parse-fail", per spec §4.4/§7.
func (j *Judge) Choose(ctx context.Context, index int, company string, ctxFields map[string]string, candidates []candidate.Candidate) (Choice, error) {
	prompt := buildUserPrompt(index, company, ctxFields, candidates)
	resp, err := j.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.Model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction + "\n" + strictReturnInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Choice{}, fmt.Errorf("llmjudge: choose: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Choice{}, errors.New("llmjudge: choose returned no choices")
	}
	return parseChoice(resp.Choices[0].Message.Content), nil
}

// safeJSON mirrors the Python helper of the same behaviour: it drops values
// that stringify to the empty string or one of nan/none/null.
func safeJSON(v string) string {
	s := strings.TrimSpace(v)
	low := strings.ToLower(s)
	if s == "" || low == "nan" || low == "none" || low == "null" {
		return ""
	}
	return s
}

func buildUserPrompt(index int, company string, ctxFields map[string]string, candidates []candidate.Candidate) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("index=%d", index))
	lines = append(lines, fmt.Sprintf("name=%q", company))

	if len(ctxFields) > 0 {
		keys := make([]string, 0, len(ctxFields))
		for k := range ctxFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var bits []string
		for _, k := range keys {
			if vs := safeJSON(ctxFields[k]); vs != "" {
				bits = append(bits, fmt.Sprintf("%s=%q", k, vs))
			}
		}
		if len(bits) > 0 {
			lines = append(lines, "context: "+strings.Join(bits, " ; "))
		}
	}

	lines = append(lines, "\nCandidates:")
	max := candidate.MaxPerCompany
	for i, c := range candidates {
		if i >= max {
			break
		}
		title := truncateRunes(c.Title, candidate.TitleLimit)
		snippet := truncateRunes(c.Snippet, candidate.SnippetLimit)
		lines = append(lines, fmt.Sprintf("[%d] url=%q title=%q snippet=%q", i, c.URL, title, snippet))
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// extractFirstJSON strips a leading/trailing code fence then returns the
// first brace-delimited object in the text, or the trimmed text unchanged
// if no object is found.
func extractFirstJSON(txt string) string {
	t := strings.TrimSpace(codeFence.ReplaceAllString(txt, ""))
	if m := firstObject.FindString(t); m != "" {
		return m
	}
	return t
}

// fieldOrDefault returns the first of keys present (and non-empty, after
// trimming) in parsed, or def when none match. Tried in order so a
// synonym key (e.g. chosen_url for chosen_from_url) can stand in for a
// missing primary key.
func fieldOrDefault(parsed gjson.Result, def string, keys ...string) string {
	for _, k := range keys {
		if r := parsed.Get(k); r.Exists() {
			if s := strings.TrimSpace(r.String()); s != "" {
				return s
			}
		}
	}
	return def
}

// parseChoice tolerantly parses a chat reply into a Choice using per-key
// gjson lookups, so a missing or malformed individual field degrades to
// its default instead of failing the whole parse. Only an unparsable
// object yields the fixed "openai-parse-fail" shape, per spec §4.4 and §7
// class 2.
func parseChoice(content string) Choice {
	obj := extractFirstJSON(strings.TrimSpace(content))
	if !gjson.Valid(obj) {
		return Choice{ChosenDomain: "null", FoundDomain: "null", Confidence: "null", Reason: "openai-parse-fail"}
	}
	parsed := gjson.Parse(obj)
	return Choice{
		ChosenDomain:  fieldOrDefault(parsed, "null", "chosen_domain"),
		ChosenFromURL: fieldOrDefault(parsed, "", "chosen_from_url", "chosen_url"),
		FoundDomain:   fieldOrDefault(parsed, "null", "found_domain"),
		Confidence:    strings.ToLower(fieldOrDefault(parsed, "null", "confidence")),
		Reason:        fieldOrDefault(parsed, "", "reason"),
	}
}
