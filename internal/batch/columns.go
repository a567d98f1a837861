// Package batch drives the input table end to end: column-role resolution,
// per-row dispatch to the row processor, progress reporting, and the
// unhealthy-flag-triggered cancellation policy.
package batch

import (
	"errors"
	"strings"
)

// companyColCandidates are exact (case-insensitive) column names checked
// first when resolving the company column.
var companyColCandidates = []string{
	"company name", "company", "organisation", "organization",
	"entreprise", "nom entreprise", "raison sociale",
}

// ErrNoCompanyColumn is the contract error raised before any I/O when no
// column can be resolved as the company name.
var ErrNoCompanyColumn = errors.New("batch: no company name column found")

// FindCompanyColumn resolves the company column by exact-name match
// against companyColCandidates, falling back to any column whose name
// contains "company", "entreprise", or "raison".
func FindCompanyColumn(columns []string) (string, error) {
	low := make(map[string]string, len(columns))
	for _, c := range columns {
		low[strings.ToLower(c)] = c
	}
	for _, cand := range companyColCandidates {
		if orig, ok := low[cand]; ok {
			return orig, nil
		}
	}
	for _, c := range columns {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "company") || strings.Contains(lc, "entreprise") || strings.Contains(lc, "raison") {
			return c, nil
		}
	}
	return "", ErrNoCompanyColumn
}

// Bucket identifies which of the five disjoint context categories a column
// belongs to.
type Bucket int

const (
	BucketNone Bucket = iota
	BucketLocation
	BucketDescription
	BucketSector
	BucketSocials
	BucketRegistration
)

var (
	ctxLocation = map[string]bool{
		"country": true, "pays": true, "country_code": true, "iso2": true, "location": true,
		"city": true, "ville": true, "region": true, "state": true, "province": true,
	}
	ctxDescription = map[string]bool{"description": true, "about": true, "bio": true, "summary": true, "notes": true}
	ctxSector      = map[string]bool{"industry": true, "sector": true, "secteur": true, "naics": true, "sic": true}
	ctxSocials     = map[string]bool{
		"website": true, "site web": true, "url": true, "domain": true, "homepage": true,
		"linkedin": true, "linkedin url": true, "profile": true, "company url": true,
	}
	ctxRegistration = map[string]bool{
		"siren": true, "siret": true, "vat": true, "vat id": true, "kvk": true, "kvk number": true,
	}
)

// contextKeywords is the union of every bucket's keywords, used as
// substrings when detecting which columns count as context at all.
var contextKeywords = func() []string {
	var out []string
	for _, set := range []map[string]bool{ctxLocation, ctxDescription, ctxSector, ctxSocials, ctxRegistration} {
		for k := range set {
			out = append(out, k)
		}
	}
	return out
}()

// DetectContextColumns returns every column (in input order) whose
// lowercased, trimmed name contains any context keyword as a substring.
func DetectContextColumns(columns []string) []string {
	var out []string
	for _, c := range columns {
		cl := strings.ToLower(strings.TrimSpace(c))
		for _, k := range contextKeywords {
			if strings.Contains(cl, k) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ClassifyColumn reports which bucket a column's exact (lowercased,
// trimmed) name falls in, used when bucketing context values for scoring
// (as opposed to DetectContextColumns' looser substring match).
func ClassifyColumn(name string) Bucket {
	kl := strings.ToLower(strings.TrimSpace(name))
	switch {
	case ctxRegistration[kl]:
		return BucketRegistration
	case ctxLocation[kl]:
		return BucketLocation
	case ctxDescription[kl]:
		return BucketDescription
	case ctxSector[kl]:
		return BucketSector
	case ctxSocials[kl]:
		return BucketSocials
	default:
		return BucketNone
	}
}

// IsScoringContextBucket reports whether a column's bucket is one of the
// three considered for context-token scoring (DESCRIPTION, SECTOR,
// LOCATION) per spec §4.7.
func IsScoringContextBucket(name string) bool {
	switch ClassifyColumn(name) {
	case BucketLocation, BucketDescription, BucketSector:
		return true
	default:
		return false
	}
}

// outputColumns lists the auxiliary columns the batch driver ensures exist
// on the output table, in addition to "URL".
var outputColumns = []string{
	"URL_confidence_score", "URL_ambiguity", "URL_cand_count",
	"URL_reg_match", "URL_reg_ids_found", "URL_debug", "URL_found_domain",
}

// EnsureOutputColumns returns the full ordered column list for the output
// table: the input columns (with "URL" added if absent) followed by any
// missing auxiliary columns.
func EnsureOutputColumns(inputColumns []string) []string {
	has := make(map[string]bool, len(inputColumns))
	for _, c := range inputColumns {
		has[c] = true
	}
	out := make([]string, 0, len(inputColumns)+1+len(outputColumns))
	out = append(out, inputColumns...)
	if !has["URL"] {
		out = append(out, "URL")
		has["URL"] = true
	}
	for _, c := range outputColumns {
		if !has[c] {
			out = append(out, c)
			has[c] = true
		}
	}
	return out
}
