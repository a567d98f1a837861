package tokenize

import "testing"

func TestStripToDomain_Idempotent(t *testing.T) {
	cases := []string{
		"https://www2.Example.com/path?x=1",
		"EXAMPLE.COM",
		"http://example.com",
	}
	for _, c := range cases {
		once := StripToDomain(c)
		twice := StripToDomain(once)
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", c, once, twice)
		}
	}
}

func TestNameTokens_DropsGenericKeepsExceptions(t *testing.T) {
	toks := NameTokens("Acme Solutions Group Hub One")
	want := map[string]bool{"acme": true, "hub": true, "one": true}
	got := toSet(toks)
	for w := range want {
		if !got[w] {
			t.Fatalf("expected token %q in %v", w, toks)
		}
	}
	for _, dropped := range []string{"solutions", "group"} {
		if got[dropped] {
			t.Fatalf("expected %q to be dropped, got %v", dropped, toks)
		}
	}
}

func TestNameTokens_AccentInsensitive(t *testing.T) {
	a := NameTokens("Société Générale")
	b := NameTokens("Societe Generale")
	if len(a) != len(b) {
		t.Fatalf("accent handling mismatch: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("accent handling mismatch at %d: %v vs %v", i, a, b)
		}
	}
}

func TestDomainTokens_DropsSubdomainStopAndGeneric(t *testing.T) {
	toks := toSet(DomainTokens("https://www.acme-group.com"))
	if !toks["acme"] {
		t.Fatalf("expected acme token, got %v", toks)
	}
	if toks["group"] {
		t.Fatalf("expected group to be dropped via generic tokens, got %v", toks)
	}
}

func TestDomainTokens_GlueSplit(t *testing.T) {
	toks := toSet(DomainTokens("acmedata.com"))
	if !toks["acme"] || !toks["data"] {
		t.Fatalf("expected glue split into acme+data, got %v", toks)
	}
}

func TestLevenshteinRatio_EdgeCases(t *testing.T) {
	if got := LevenshteinRatio("", ""); got != 1.0 {
		t.Fatalf("equal empty strings should score 1.0, got %v", got)
	}
	if got := LevenshteinRatio("a", ""); got != 0.0 {
		t.Fatalf("one empty string should score 0.0, got %v", got)
	}
	if got := LevenshteinRatio("abc", "abc"); got != 1.0 {
		t.Fatalf("identical strings should score 1.0, got %v", got)
	}
	if got := LevenshteinRatio("kitten", "sitting"); got <= 0 || got >= 1 {
		t.Fatalf("expected a partial ratio in (0,1), got %v", got)
	}
}

func TestStrongTokenOverlap(t *testing.T) {
	if !StrongTokenOverlap("Airbus", "airbus.com") {
		t.Fatalf("expected overlap for exact brand match")
	}
	if StrongTokenOverlap("Totally Unrelated Corp", "example.org") {
		t.Fatalf("did not expect overlap for unrelated names")
	}
}
