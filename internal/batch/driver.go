package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/domainresolve/enrich-core/internal/ratelimit"
	"github.com/domainresolve/enrich-core/internal/rowproc"
)

// Row is one input record: the company name plus every other column's raw
// string value, keyed by column name.
type Row struct {
	Values map[string]string
}

// Result is one row's outcome merged back onto its input values.
type Result struct {
	Row    Row
	Output rowproc.OutputRow
	Err    error
}

// ProgressFunc reports (current, total, message) as the batch advances,
// matching the fixed message conventions in spec §7.
type ProgressFunc func(current, total int, message string)

// Processor is the interface rowproc.Processor satisfies; the indirection
// lets tests supply a fake.
type Processor interface {
	Process(ctx context.Context, in rowproc.Input) (rowproc.OutputRow, error)
}

// defaultRowConcurrency bounds simultaneous row dispatch when the caller
// does not set Driver.RowConcurrency explicitly. The real ceiling on
// useful work in flight is still the search/LLM semaphores in Caps; this
// just keeps an unbounded row count from spawning an unbounded goroutine
// count ahead of those semaphores.
const defaultRowConcurrency = 128

// Driver runs a full batch: resolving columns once, then dispatching each
// row lacking a URL to a row Processor, honoring an Unhealthy flag that
// stops new dispatch and lets in-flight rows abort at their next
// suspension point.
type Driver struct {
	Processor Processor
	Unhealthy *ratelimit.Unhealthy

	// RowConcurrency bounds the number of rows dispatched to Processor at
	// once. Actual search/LLM parallelism is still gated by Caps; this
	// only bounds goroutine fan-out. Defaults to defaultRowConcurrency.
	RowConcurrency int
}

// NewDriver builds a Driver.
func NewDriver(p Processor, unhealthy *ratelimit.Unhealthy) *Driver {
	return &Driver{Processor: p, Unhealthy: unhealthy, RowConcurrency: defaultRowConcurrency}
}

// Run resolves the company and context columns once against columns
// (the caller guarantees a consistent schema across rows),
// then dispatches every row lacking a URL to a row Processor concurrently,
// up to RowConcurrency in flight, preserving row order in the returned
// slice. Run raises ErrNoCompanyColumn synchronously, before any row is
// touched, per spec §7 class 5.
func (d *Driver) Run(ctx context.Context, columns []string, rows []Row, progress ProgressFunc) ([]Result, error) {
	companyCol, err := FindCompanyColumn(columns)
	if err != nil {
		return nil, err
	}
	contextCols := DetectContextColumns(columns)

	total := len(rows)
	var progressMu sync.Mutex
	reportSafe := func(current, totalN int, message string) {
		progressMu.Lock()
		defer progressMu.Unlock()
		report(progress, current, totalN, message)
	}
	reportSafe(0, total, "Starting enrichment...")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if d.Unhealthy != nil {
		go func() {
			select {
			case <-d.Unhealthy.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	results := make([]Result, total)
	g, gctx := errgroup.WithContext(runCtx)
	limit := d.RowConcurrency
	if limit <= 0 {
		limit = defaultRowConcurrency
	}
	g.SetLimit(limit)

	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			if d.Unhealthy != nil && d.Unhealthy.IsSet() {
				results[i] = Result{Row: row, Err: fmt.Errorf("batch: aborted: %w", d.Unhealthy.Reason())}
				return nil
			}
			select {
			case <-gctx.Done():
				results[i] = Result{Row: row, Err: gctx.Err()}
				return nil
			default:
			}

			company := row.Values[companyCol]
			reportSafe(i+1, total, progressMessage(company))

			if existing := row.Values["URL"]; existing != "" {
				results[i] = Result{Row: row, Output: rowproc.OutputRow{URL: existing}}
				return nil
			}

			in := rowproc.Input{Index: i, Company: company, Context: buildContextFields(row, contextCols)}
			out, err := d.Processor.Process(gctx, in)
			if err != nil {
				if d.Unhealthy != nil {
					d.Unhealthy.Set(err)
				}
				results[i] = Result{Row: row, Err: err}
				return nil
			}
			results[i] = Result{Row: row, Output: out}
			return nil
		})
	}
	_ = g.Wait()

	reportSafe(total, total, "Enrichment complete!")
	return results, nil
}

func buildContextFields(row Row, contextCols []string) []rowproc.ContextField {
	out := make([]rowproc.ContextField, 0, len(contextCols))
	for _, c := range contextCols {
		out = append(out, rowproc.ContextField{
			Name:             c,
			Value:            row.Values[c],
			IsRegistration:   ClassifyColumn(c) == BucketRegistration,
			IsScoringContext: IsScoringContextBucket(c),
		})
	}
	return out
}

// progressMessage mirrors the Python driver's truncation: the company
// name capped at 30 runes, with "..." appended when truncated.
func progressMessage(company string) string {
	r := []rune(company)
	if len(r) > 30 {
		return fmt.Sprintf("Processing: %s...", string(r[:30]))
	}
	return fmt.Sprintf("Processing: %s", company)
}

func report(progress ProgressFunc, current, total int, message string) {
	if progress != nil {
		progress(current, total, message)
	}
}
