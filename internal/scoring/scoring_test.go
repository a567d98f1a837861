package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/domainresolve/enrich-core/internal/candidate"
	"github.com/domainresolve/enrich-core/internal/llmjudge"
)

func TestRecover_ChosenFromURLWhenDomainNull(t *testing.T) {
	choice := llmjudge.Choice{ChosenDomain: "null", ChosenFromURL: "https://airbus.com/en", Confidence: "entity"}
	dom, conf, _, used := Recover(choice)
	if dom != "airbus.com" || conf != "entity" || used {
		t.Fatalf("unexpected recovery: dom=%q conf=%q used=%v", dom, conf, used)
	}
}

func TestRecover_URLInReason(t *testing.T) {
	choice := llmjudge.Choice{ChosenDomain: "null", Reason: `best guess is https://example.com/about`}
	dom, _, _, _ := Recover(choice)
	if dom != "example.com" {
		t.Fatalf("expected example.com, got %q", dom)
	}
}

func TestRecover_PromotesFoundDomain(t *testing.T) {
	choice := llmjudge.Choice{ChosenDomain: "null", FoundDomain: "obscure-startup.io", Reason: ""}
	dom, conf, reason, used := Recover(choice)
	if dom != "obscure-startup.io" || conf != "entity" || !used {
		t.Fatalf("unexpected: dom=%q conf=%q used=%v", dom, conf, used)
	}
	if reason != "LLM-direct-found" {
		t.Fatalf("expected reason LLM-direct-found, got %q", reason)
	}
}

func TestRecover_NullStaysEmpty(t *testing.T) {
	choice := llmjudge.Choice{ChosenDomain: "null", FoundDomain: "null"}
	dom, _, _, _ := Recover(choice)
	if dom != "" {
		t.Fatalf("expected empty domain, got %q", dom)
	}
}

func TestHomonymGuard_TrustedConfidenceAlwaysPasses(t *testing.T) {
	if !HomonymGuard("Totally Unrelated Co", "zzz-unrelated-domain.example", "country") {
		t.Fatalf("expected country confidence to pass guard unconditionally")
	}
}

func TestHomonymGuard_AliasMatch(t *testing.T) {
	if !HomonymGuard("Reel IT", "reel.fr", "null") {
		t.Fatalf("expected brand-alias guard to pass for Reel IT / reel.fr")
	}
}

func TestHomonymGuard_StrongOverlapPasses(t *testing.T) {
	if !HomonymGuard("Airbus", "airbus.com", "null") {
		t.Fatalf("expected token overlap to pass guard")
	}
}

func TestHomonymGuard_RejectsUnrelated(t *testing.T) {
	if HomonymGuard("Totally Unrelated Co", "zzz-other-domain.example", "null") {
		t.Fatalf("expected unrelated company/domain to fail guard")
	}
}

func TestAmbiguityCount_ExcludesChosenCountsSimilar(t *testing.T) {
	cands := []candidate.Candidate{
		{Domain: "airbus.com"},
		{Domain: "airbus.fr"},
		{Domain: "totallyunrelated.example"},
	}
	n := AmbiguityCount("Airbus", cands, "airbus.com")
	if n != 1 {
		t.Fatalf("expected ambiguity 1 (airbus.fr), got %d", n)
	}
}

func TestScore_EntityNoAmbiguityNoContext(t *testing.T) {
	s := Score("entity", 0, 1, "Airbus", false, 0, 0)
	if s != 95 {
		t.Fatalf("expected 95, got %d", s)
	}
}

func TestScore_UsedLLMFoundFloorsAt75(t *testing.T) {
	s := Score("null", 0, 1, "Obscure Startup", true, 12, 0)
	if s < 75 {
		t.Fatalf("expected floor of 75, got %d", s)
	}
}

func TestScore_ClampsToMax100(t *testing.T) {
	s := Score("entity", 0, 1, "Airbus", false, 0, 10)
	if s != 100 {
		t.Fatalf("expected clamp to 100, got %d", s)
	}
}

func TestDNSOK_DisabledAlwaysTrue(t *testing.T) {
	if !DNSOK(context.Background(), nil, false, "nonexistent.invalid.example.zzz", time.Second) {
		t.Fatalf("expected disabled DNS check to always pass")
	}
}

func TestContextPositiveBonus_Thresholds(t *testing.T) {
	want := map[string]bool{"aerospace": true, "toulouse": true}
	if b := ContextPositiveBonus(want, "airbus.com", "Airbus Aerospace", "Based in Toulouse"); b != 10 {
		t.Fatalf("expected bonus 10 for 2 hits, got %d", b)
	}
	if b := ContextPositiveBonus(want, "airbus.com", "Airbus Aerospace", ""); b != 5 {
		t.Fatalf("expected bonus 5 for 1 hit, got %d", b)
	}
	if b := ContextPositiveBonus(want, "airbus.com", "nothing relevant", ""); b != 0 {
		t.Fatalf("expected bonus 0 for no hits, got %d", b)
	}
}
