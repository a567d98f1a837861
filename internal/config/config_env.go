package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment if present,
// without overriding variables already set. A missing file is not an
// error; any other read failure is returned.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnvToConfig populates unset fields of cfg from environment
// variables. Explicit cfg values (set by flags before this runs) take
// precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = firstEnv("OPENAI_API_KEY", "OPENAI_API_KEY_OLD")
	}
	if cfg.OpenAIOrgID == "" {
		cfg.OpenAIOrgID = os.Getenv("OPENAI_ORG_ID")
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = os.Getenv("OPENAI_MODEL")
	}
	if cfg.SerperAPIKey == "" {
		cfg.SerperAPIKey = firstEnv("SERPER_API_KEY", "SERPER_API_KEY_OLD")
	}

	setIntIfZero(&cfg.SerpMaxRPS, "SERP_MAX_RPS")
	setIntIfZero(&cfg.SerpConcurrency, "SERP_CONCURRENCY")
	setIntIfZero(&cfg.OpenAIConcurrency, "OPENAI_CONCURRENCY")
	setIntIfZero(&cfg.MaxRetries, "MAX_RETRIES")
	setIntIfZero(&cfg.MaxCandidatesPerCompany, "MAX_CANDIDATES_PER_COMPANY")
	setIntIfZero(&cfg.SearchResultsPerCall, "SEARCH_RESULTS_PER_CALL")

	setFloatIfZero(&cfg.BackoffBase, "BACKOFF_BASE")

	setDurationIfZero(&cfg.HTTPConnectTimeout, "HTTP_CONNECT_TIMEOUT")
	setDurationIfZero(&cfg.HTTPReadTimeout, "HTTP_READ_TIMEOUT")
	setDurationIfZero(&cfg.DNSTimeout, "DNS_TIMEOUT")

	if !cfg.EnableDNSCheck {
		cfg.EnableDNSCheck = envBool("ENABLE_DNS_CHECK")
	}
	if !cfg.Verbose {
		cfg.Verbose = envBool("VERBOSE")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setIntIfZero(dst *int, envKey string) {
	if *dst != 0 {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setFloatIfZero(dst *float64, envKey string) {
	if *dst != 0 {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}

func setDurationIfZero(dst *time.Duration, envKey string) {
	if *dst != 0 {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

func envBool(envKey string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
