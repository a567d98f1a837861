// Package report renders a diagnostics summary of a completed batch
// enrichment run as PDF: counts by outcome, confidence distribution, and
// the list of rows that errored or came back without a resolved URL. It is an optional
// companion artifact, not a substitute for the tabular output the driver
// produces.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/domainresolve/enrich-core/internal/batch"
)

// Summary is the aggregate view of a completed Run, computed once and
// reused by both the PDF renderer and any caller that wants the numbers
// without paying for layout.
type Summary struct {
	Total         int
	Resolved      int // non-empty URL
	Unresolved    int // empty URL, no error
	Errored       int
	RegMismatches int
	AvgConfidence float64
	ByConfidence  map[string]int // confidence bucket -> count, "low"/"medium"/"high"
}

// Summarize aggregates a batch run's results.
func Summarize(results []batch.Result) Summary {
	s := Summary{Total: len(results), ByConfidence: map[string]int{"low": 0, "medium": 0, "high": 0}}
	var confSum float64
	var confN int
	for _, r := range results {
		if r.Err != nil {
			s.Errored++
			continue
		}
		if r.Output.URL == "" {
			s.Unresolved++
			continue
		}
		s.Resolved++
		if r.Output.RegMatch == "no" {
			s.RegMismatches++
		}
		if r.Output.ConfidenceScore != "" {
			if n, err := strconv.Atoi(r.Output.ConfidenceScore); err == nil {
				confSum += float64(n)
				confN++
				s.ByConfidence[confidenceBucket(n)]++
			}
		}
	}
	if confN > 0 {
		s.AvgConfidence = confSum / float64(confN)
	}
	return s
}

func confidenceBucket(score int) string {
	switch {
	case score >= 80:
		return "high"
	case score >= 50:
		return "medium"
	default:
		return "low"
	}
}

// WritePDF renders a diagnostics summary for results to outPath: an
// aggregate table followed by one line per row that errored or came back
// without a resolved URL, so an operator can see what needs attention
// without opening the full tabular output.
func WritePDF(results []batch.Result, outPath string) error {
	s := Summarize(results)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Enrichment run diagnostics", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Ln(4)

	writeStatLine(pdf, "Rows processed", fmt.Sprintf("%d", s.Total))
	writeStatLine(pdf, "Resolved", fmt.Sprintf("%d", s.Resolved))
	writeStatLine(pdf, "Unresolved", fmt.Sprintf("%d", s.Unresolved))
	writeStatLine(pdf, "Errored", fmt.Sprintf("%d", s.Errored))
	writeStatLine(pdf, "Registration mismatches", fmt.Sprintf("%d", s.RegMismatches))
	writeStatLine(pdf, "Average confidence", fmt.Sprintf("%.1f", s.AvgConfidence))

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Confidence distribution", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, bucket := range []string{"high", "medium", "low"} {
		writeStatLine(pdf, strings.Title(bucket), fmt.Sprintf("%d", s.ByConfidence[bucket]))
	}

	writeAttentionRows(pdf, results)

	return pdf.OutputFileAndClose(outPath)
}

func writeStatLine(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(70, 6, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

// writeAttentionRows lists, sorted by company name, every row that errored
// or came back without a resolved URL, capped so a large run doesn't
// produce an unbounded PDF.
func writeAttentionRows(pdf *gofpdf.Fpdf, results []batch.Result) {
	const maxListed = 200

	type flagged struct {
		company string
		reason  string
	}
	var rows []flagged
	for _, r := range results {
		switch {
		case r.Err != nil:
			rows = append(rows, flagged{company: companyName(r.Row), reason: "error: " + r.Err.Error()})
		case r.Output.URL == "":
			rows = append(rows, flagged{company: companyName(r.Row), reason: "unresolved"})
		}
	}
	if len(rows) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].company < rows[j].company })

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Rows needing attention (%d)", len(rows)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)

	shown := rows
	truncated := false
	if len(shown) > maxListed {
		shown = shown[:maxListed]
		truncated = true
	}
	for _, f := range shown {
		pdf.MultiCell(0, 5, fmt.Sprintf("%s — %s", f.company, f.reason), "", "L", false)
	}
	if truncated {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, 5, fmt.Sprintf("... %d more rows omitted", len(rows)-maxListed), "", 1, "L", false, 0, "")
	}
}

func companyName(row batch.Row) string {
	for _, key := range []string{"Company", "company", "Company Name", "Name", "name"} {
		if v, ok := row.Values[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "(unknown company)"
}
