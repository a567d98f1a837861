// Package search provides the Provider abstraction and the Serper-backed
// implementation used to generate per-row candidate URLs.
package search

import (
	"context"

	"github.com/domainresolve/enrich-core/internal/candidate"
)

// Provider is the minimal interface row processing needs from a search
// backend: a locale-aware query that returns filtered candidates.
type Provider interface {
	Search(ctx context.Context, query string, locale Locale, num int) ([]candidate.Candidate, error)
	Name() string
}

// Locale carries the optional gl/hl hints derived from a row's context.
type Locale struct {
	GL string // google country code, e.g. "fr"
	HL string // google language code, e.g. "fr"
}

// countryToLocale maps a country name (lowercased) to an ISO2 code, mirroring
// the fixed table in spec.md §6. GuessLocale consults this only when no
// explicit country_code/iso2 column is present.
var countryToLocale = map[string]string{
	"france": "FR", "belgium": "BE", "switzerland": "CH", "canada": "CA",
	"united states": "US", "usa": "US", "united kingdom": "GB", "uk": "GB",
	"ireland": "IE", "australia": "AU", "new zealand": "NZ", "germany": "DE",
	"austria": "AT", "spain": "ES", "mexico": "MX", "argentina": "AR",
	"italy": "IT", "netherlands": "NL", "sweden": "SE", "norway": "NO",
	"denmark": "DK", "portugal": "PT", "brazil": "BR", "poland": "PL",
	"czech republic": "CZ", "romania": "RO", "hungary": "HU", "finland": "FI",
	"estonia": "EE", "lithuania": "LT", "latvia": "LV",
	"united arab emirates": "AE", "india": "IN", "singapore": "SG", "japan": "JP",
	"switzerland (de)": "CH-DE",
}

// iso2ToGLHL is the fixed country->(gl,hl) table from spec.md §6.
var iso2ToGLHL = map[string][2]string{
	"FR": {"fr", "fr"}, "BE": {"be", "fr"}, "CH": {"ch", "fr"}, "CA": {"ca", "en"},
	"US": {"us", "en"}, "GB": {"gb", "en"}, "IE": {"ie", "en"}, "AU": {"au", "en"},
	"NZ": {"nz", "en"}, "DE": {"de", "de"}, "AT": {"at", "de"}, "CH-DE": {"ch", "de"},
	"ES": {"es", "es"}, "MX": {"mx", "es"}, "AR": {"ar", "es"}, "IT": {"it", "it"},
	"NL": {"nl", "nl"}, "SE": {"se", "sv"}, "NO": {"no", "no"}, "DK": {"dk", "da"},
	"PT": {"pt", "pt"}, "BR": {"br", "pt"}, "PL": {"pl", "pl"}, "CZ": {"cz", "cs"},
	"RO": {"ro", "ro"}, "HU": {"hu", "hu"}, "FI": {"fi", "fi"}, "EE": {"ee", "et"},
	"LT": {"lt", "lt"}, "LV": {"lv", "lv"}, "AE": {"ae", "en"}, "IN": {"in", "en"},
	"SG": {"sg", "en"}, "JP": {"jp", "ja"},
}

// GuessLocale derives (gl, hl) from a row's context columns. A column whose
// name contains "country_code" or equals "iso2" takes precedence over a
// free-text "country"/"pays" column passed through the fixed name table.
// Unknown input yields a zero Locale (no hints sent upstream).
func GuessLocale(ctx map[string]string) Locale {
	var code string
	for k, v := range ctx {
		kl := normalizeKey(k)
		if containsToken(kl, "country_code") || kl == "iso2" {
			code = upper(v)
			break
		}
	}
	if code == "" {
		for k, v := range ctx {
			kl := normalizeKey(k)
			if kl == "country" || containsToken(kl, "pays") {
				if c, ok := countryToLocale[lower(v)]; ok {
					code = c
				}
				break
			}
		}
	}
	if code == "" {
		return Locale{}
	}
	if pair, ok := iso2ToGLHL[code]; ok {
		return Locale{GL: pair[0], HL: pair[1]}
	}
	return Locale{}
}
