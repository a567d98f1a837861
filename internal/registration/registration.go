// Package registration extracts and cross-matches French and European
// company registration identifiers (SIREN, SIRET, VAT, KvK) from free-form
// text and input columns.
package registration

import (
	"regexp"
	"sort"
	"strings"
)

// Set holds the four disjoint identifier kinds as deduplicated sets.
type Set struct {
	SIREN map[string]bool
	SIRET map[string]bool
	VAT   map[string]bool
	KVK   map[string]bool
}

// NewSet returns an empty, initialized Set.
func NewSet() Set {
	return Set{
		SIREN: map[string]bool{},
		SIRET: map[string]bool{},
		VAT:   map[string]bool{},
		KVK:   map[string]bool{},
	}
}

// Any reports whether the set has at least one identifier of any kind.
func (s Set) Any() bool {
	return len(s.SIREN) > 0 || len(s.SIRET) > 0 || len(s.VAT) > 0 || len(s.KVK) > 0
}

// SortedUnion returns every identifier across all four kinds, sorted.
func (s Set) SortedUnion() []string {
	out := make([]string, 0, len(s.SIREN)+len(s.SIRET)+len(s.VAT)+len(s.KVK))
	for _, m := range []map[string]bool{s.SIREN, s.SIRET, s.VAT, s.KVK} {
		for v := range m {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func (s Set) merge(other Set) {
	for v := range other.SIREN {
		s.SIREN[v] = true
	}
	for v := range other.SIRET {
		s.SIRET[v] = true
	}
	for v := range other.VAT {
		s.VAT[v] = true
	}
	for v := range other.KVK {
		s.KVK[v] = true
	}
}

// Merge folds other into s in place.
func (s Set) Merge(other Set) { s.merge(other) }

const space = `[ \x{00A0}\x{202F}]*`

var (
	sirenCore = `\d{3}` + space + `\d{3}` + space + `\d{3}`
	siretCore = sirenCore + space + `\d{5}`

	sirenRe = regexp.MustCompile(`(?i)\b(?:siren|n°\s*siren|numero\s*siren|num\s*siren)\b[^0-9]{0,20}(` + sirenCore + `)\b`)
	siretRe = regexp.MustCompile(`(?i)\b(?:siret|n°\s*siret|numero\s*siret|num\s*siret)\b[^0-9]{0,20}(` + siretCore + `)\b`)
	sirenFB = regexp.MustCompile(`(?i)\b(` + sirenCore + `)\b`)
	siretFB = regexp.MustCompile(`(?i)\b(` + siretCore + `)\b`)
	vatRe   = regexp.MustCompile(`(?i)\b(?:VAT|TVA|USt-IdNr|Partita IVA|BTW|GST)\b[^A-Z0-9]{0,12}([A-Z0-9\-]{8,16})\b`)
	kvkRe   = regexp.MustCompile(`(?i)\b(?:KvK|Kamer van Koophandel)\b[^0-9]{0,12}(\d{6,12})\b`)
)

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LuhnValid reports whether the digit string passes a standard mod-10 Luhn
// check with right-to-left doubling of every other digit. Non-digit
// characters are ignored; an all-non-digit input is invalid.
func LuhnValid(s string) bool {
	digits := digitsOnly(s)
	if digits == "" {
		return false
	}
	sum := 0
	parity := len(digits) % 2
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func normalizeSpaces(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = strings.ReplaceAll(s, " ", " ")
	return s
}

func findAll(re *regexp.Regexp, s string) []string {
	ms := re.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m[1])
	}
	return out
}

// ExtractFromText pulls every recognizable registration identifier out of
// free-form text, preferring labelled matches and falling back to
// unlabelled SIREN/SIRET patterns. SIRET requires its embedded SIREN (the
// first 9 digits) to pass Luhn; SIREN requires its own 9 digits to pass.
// Any Luhn-valid SIREN embedded in a found SIRET is folded into SIREN too.
func ExtractFromText(text string) Set {
	out := NewSet()
	if strings.TrimSpace(text) == "" {
		return out
	}
	norm := normalizeSpaces(text)

	for _, m := range append(findAll(siretRe, norm), findAll(siretFB, norm)...) {
		d := digitsOnly(m)
		if len(d) == 14 && LuhnValid(d[:9]) {
			out.SIRET[d] = true
		}
	}
	for _, m := range append(findAll(sirenRe, norm), findAll(sirenFB, norm)...) {
		d := digitsOnly(m)
		if len(d) == 9 && LuhnValid(d) {
			out.SIREN[d] = true
		}
	}
	if len(out.SIRET) > 0 {
		for siret := range out.SIRET {
			s9 := siret[:9]
			if LuhnValid(s9) {
				out.SIREN[s9] = true
			}
		}
	}
	for _, m := range findAll(vatRe, norm) {
		out.VAT[strings.ToUpper(strings.TrimSpace(m))] = true
	}
	for _, m := range findAll(kvkRe, norm) {
		out.KVK[digitsOnly(m)] = true
	}
	return out
}

// ExpectedFromColumns builds an expected Set from input columns named
// exactly siren/siret/vat/"vat id"/kvk/"kvk number" (case-insensitive).
func ExpectedFromColumns(cols map[string]string) Set {
	out := NewSet()
	for k, v := range cols {
		kl := strings.ToLower(strings.TrimSpace(k))
		vs := strings.TrimSpace(v)
		if vs == "" {
			continue
		}
		switch kl {
		case "siren":
			if d := digitsOnly(vs); len(d) == 9 {
				out.SIREN[d] = true
			}
		case "siret":
			d := digitsOnly(vs)
			if len(d) == 14 {
				out.SIRET[d] = true
			}
			if len(d) >= 9 {
				out.SIREN[d[:9]] = true
			}
		case "vat", "vat id":
			out.VAT[strings.ToUpper(vs)] = true
		case "kvk", "kvk number":
			if d := digitsOnly(vs); len(d) >= 6 {
				out.KVK[d] = true
			}
		}
	}
	return out
}

// Match reports whether any identifier in expected is corroborated by
// found, per the disjunctive match rule in spec §4.6.
func Match(expected, found Set) bool {
	if intersects(expected.SIREN, found.SIREN) {
		return true
	}
	if intersects(expected.SIRET, found.SIRET) {
		return true
	}
	for s := range expected.SIREN {
		for siret := range found.SIRET {
			if len(siret) >= 9 && siret[:9] == s {
				return true
			}
		}
	}
	for siret := range expected.SIRET {
		for s2 := range found.SIREN {
			if len(siret) >= 9 && siret[:9] == s2 {
				return true
			}
		}
	}
	for v := range expected.VAT {
		if len(v) < 8 {
			continue
		}
		for f := range found.VAT {
			if strings.Contains(v, f) || strings.Contains(f, v) {
				return true
			}
		}
	}
	for k := range expected.KVK {
		for f := range found.KVK {
			if strings.Contains(k, f) || strings.Contains(f, k) {
				return true
			}
		}
	}
	return false
}

func intersects(a, b map[string]bool) bool {
	for v := range a {
		if b[v] {
			return true
		}
	}
	return false
}

