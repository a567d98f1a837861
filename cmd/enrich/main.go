package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/domainresolve/enrich-core/internal/batch"
	"github.com/domainresolve/enrich-core/internal/config"
	"github.com/domainresolve/enrich-core/internal/legalcrawl"
	"github.com/domainresolve/enrich-core/internal/llm"
	"github.com/domainresolve/enrich-core/internal/llmjudge"
	"github.com/domainresolve/enrich-core/internal/ratelimit"
	"github.com/domainresolve/enrich-core/internal/report"
	"github.com/domainresolve/enrich-core/internal/rowproc"
	"github.com/domainresolve/enrich-core/internal/search"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Default()

	var (
		envFile    string
		configFile string
		reportPath string
	)

	flag.StringVar(&cfg.InputPath, "input", "", "Path to input CSV of company records")
	flag.StringVar(&cfg.OutputPath, "output", "", "Path to write the enriched output CSV")
	flag.StringVar(&cfg.OpenAIAPIKey, "openai.key", "", "OpenAI API key (defaults to OPENAI_API_KEY)")
	flag.StringVar(&cfg.OpenAIOrgID, "openai.org", "", "OpenAI organization ID")
	flag.StringVar(&cfg.OpenAIModel, "openai.model", "", "Chat model to judge candidates with")
	flag.StringVar(&cfg.SerperAPIKey, "serper.key", "", "Serper.dev API key (defaults to SERPER_API_KEY)")
	flag.IntVar(&cfg.SerpMaxRPS, "serp.maxRPS", 0, "Max search requests per second")
	flag.IntVar(&cfg.SerpConcurrency, "serp.concurrency", 0, "Max concurrent search calls")
	flag.IntVar(&cfg.OpenAIConcurrency, "openai.concurrency", 0, "Max concurrent judge calls")
	flag.IntVar(&cfg.MaxRetries, "max.retries", 0, "Max retry attempts for transient search/judge failures")
	flag.IntVar(&cfg.MaxCandidatesPerCompany, "max.candidates", 0, "Max candidates gathered per company")
	flag.IntVar(&cfg.SearchResultsPerCall, "search.resultsPerCall", 0, "Results requested per search call")
	flag.BoolVar(&cfg.EnableDNSCheck, "dns.check", false, "Enable DNS existence check before accepting a chosen domain")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	flag.StringVar(&envFile, "envfile", ".env", "Path to a .env file to load before flags/env resolution")
	flag.StringVar(&configFile, "config", "", "Path to an optional YAML config file")
	flag.StringVar(&reportPath, "report", "", "Optional path to write a PDF diagnostics summary")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		log.Warn().Err(err).Msg("failed loading .env file")
	}
	config.ApplyEnvToConfig(&cfg)

	defaults := config.Default()
	fc, err := config.LoadConfigFile(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed loading config file")
	}
	config.ApplyFileConfig(&cfg, fc, defaults)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := run(cfg, reportPath); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, reportPath string) error {
	ctx := context.Background()

	columns, rows, err := readInput(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("enrich: read input: %w", err)
	}

	httpClient := newHTTPClient(cfg)

	searchProvider := search.NewSerperProvider(cfg.SerperAPIKey, httpClient, log.Logger)

	oaConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIOrgID != "" {
		oaConfig.OrgID = cfg.OpenAIOrgID
	}
	judge := llmjudge.NewJudge(&llm.OpenAIProvider{Inner: openai.NewClientWithConfig(oaConfig)}, cfg.OpenAIModel)
	if err := judge.Preflight(ctx); err != nil {
		return fmt.Errorf("enrich: llm preflight: %w", err)
	}

	crawler := legalcrawl.NewCrawler(httpClient)
	caps := ratelimit.NewCaps(cfg.SerpConcurrency, cfg.OpenAIConcurrency, cfg.SerpMaxRPS)
	unhealthy := ratelimit.NewUnhealthy()

	procCfg := rowproc.DefaultConfig()
	procCfg.MaxCandidatesPerCompany = cfg.MaxCandidatesPerCompany
	procCfg.SearchResultsPerCall = cfg.SearchResultsPerCall
	procCfg.EnableDNSCheck = cfg.EnableDNSCheck
	procCfg.DNSTimeoutSeconds = int(cfg.DNSTimeout.Seconds())

	processor := rowproc.NewProcessor(searchProvider, judge, crawler, caps, unhealthy, procCfg)
	processor.Retry = ratelimit.RetryConfig{MaxRetries: cfg.MaxRetries, BackoffBase: cfg.BackoffBase}
	driver := batch.NewDriver(processor, unhealthy)
	if n := cfg.SerpConcurrency + cfg.OpenAIConcurrency; n > 0 {
		driver.RowConcurrency = n
	}

	progress := func(current, total int, message string) {
		log.Info().Int("current", current).Int("total", total).Msg(message)
	}

	results, err := driver.Run(ctx, columns, rows, progress)
	if err != nil {
		return fmt.Errorf("enrich: batch run: %w", err)
	}

	outColumns := batch.EnsureOutputColumns(columns)
	if err := writeOutput(cfg.OutputPath, outColumns, results); err != nil {
		return fmt.Errorf("enrich: write output: %w", err)
	}

	if reportPath != "" {
		if err := report.WritePDF(results, reportPath); err != nil {
			log.Warn().Err(err).Msg("failed writing diagnostics PDF")
		}
	}

	return nil
}

// newHTTPClient builds the shared client for search and legal-page
// crawling, tuned for the search/LLM concurrency caps: a bounded connect
// timeout and enough idle connections per host that neither caps out
// before the other does.
func newHTTPClient(cfg config.Config) *http.Client {
	maxIdlePerHost := cfg.SerpConcurrency + cfg.OpenAIConcurrency
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = 100
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.HTTPConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		MaxConnsPerHost:       0,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.HTTPConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: cfg.HTTPReadTimeout}
}

// readInput loads a CSV file into a column list and row slice. CSV
// read/write is a thin boundary adapter, not the ingestion/export pipeline
// the core deliberately leaves to an external collaborator.
func readInput(path string) ([]string, []batch.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("enrich: read header: %w", err)
	}

	var rows []batch.Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		values := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				values[col] = record[i]
			}
		}
		rows = append(rows, batch.Row{Values: values})
	}
	return header, rows, nil
}

func writeOutput(path string, columns []string, results []batch.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}
	for _, r := range results {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = outputValue(col, r)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func outputValue(col string, r batch.Result) string {
	switch col {
	case "URL":
		return r.Output.URL
	case "URL_confidence_score":
		return r.Output.ConfidenceScore
	case "URL_ambiguity":
		return fmt.Sprintf("%d", r.Output.Ambiguity)
	case "URL_cand_count":
		return fmt.Sprintf("%d", r.Output.CandCount)
	case "URL_reg_match":
		return r.Output.RegMatch
	case "URL_reg_ids_found":
		return r.Output.RegIDsFound
	case "URL_debug":
		return r.Output.Debug
	case "URL_found_domain":
		return r.Output.FoundDomain
	default:
		return r.Row.Values[col]
	}
}
