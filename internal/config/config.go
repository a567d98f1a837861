// Package config resolves runtime configuration from flags, environment
// variables, an optional YAML file, and a .env file, in that precedence
// order (flags win, then env, then file, then the built-in defaults).
package config

import "time"

// Config holds every tunable in spec §6's configuration table.
type Config struct {
	InputPath  string
	OutputPath string

	OpenAIAPIKey string
	OpenAIOrgID  string
	OpenAIModel  string

	SerperAPIKey string

	SerpMaxRPS        int
	SerpConcurrency   int
	OpenAIConcurrency int

	HTTPConnectTimeout time.Duration
	HTTPReadTimeout    time.Duration

	MaxRetries  int
	BackoffBase float64

	MaxCandidatesPerCompany int
	SearchResultsPerCall    int

	EnableDNSCheck bool
	DNSTimeout     time.Duration

	Verbose bool
}

// Default returns the documented defaults from spec §6.
func Default() Config {
	return Config{
		OpenAIModel:             "gpt-4o-mini",
		SerpMaxRPS:              50,
		SerpConcurrency:         100,
		OpenAIConcurrency:       24,
		HTTPConnectTimeout:      8 * time.Second,
		HTTPReadTimeout:         45 * time.Second,
		MaxRetries:              4,
		BackoffBase:             1.6,
		MaxCandidatesPerCompany: 8,
		SearchResultsPerCall:    12,
		EnableDNSCheck:          false,
		DNSTimeout:              3 * time.Second,
	}
}
