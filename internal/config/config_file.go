package config

import (
	"errors"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the YAML config-file schema. Every field overlays onto
// Config only when the corresponding Config field is still at its
// zero/default value, so flags and env (applied before the file) win.
type FileConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		OrgID  string `yaml:"orgId"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Serper struct {
		APIKey string `yaml:"apiKey"`
	} `yaml:"serper"`

	Limits struct {
		SerpMaxRPS              int `yaml:"serpMaxRPS"`
		SerpConcurrency         int `yaml:"serpConcurrency"`
		OpenAIConcurrency       int `yaml:"openaiConcurrency"`
		MaxRetries              int `yaml:"maxRetries"`
		MaxCandidatesPerCompany int `yaml:"maxCandidatesPerCompany"`
		SearchResultsPerCall    int `yaml:"searchResultsPerCall"`
	} `yaml:"limits"`

	BackoffBase float64 `yaml:"backoffBase"`

	HTTP struct {
		ConnectTimeout time.Duration `yaml:"connectTimeout"`
		ReadTimeout    time.Duration `yaml:"readTimeout"`
	} `yaml:"http"`

	DNS struct {
		Enable  bool          `yaml:"enable"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"dns"`

	Verbose bool `yaml:"verbose"`
}

// LoadConfigFile reads and parses a YAML config file. A missing path is
// not an error; LoadConfigFile returns a zero FileConfig for it.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ApplyFileConfig overlays fc onto cfg wherever cfg still holds a
// zero/default value, matching the precedence documented in spec §6:
// flags > env > file > built-in defaults.
func ApplyFileConfig(cfg *Config, fc FileConfig, defaults Config) {
	if cfg == nil {
		return
	}
	if cfg.InputPath == "" && fc.Input != "" {
		cfg.InputPath = fc.Input
	}
	if cfg.OutputPath == "" && fc.Output != "" {
		cfg.OutputPath = fc.Output
	}
	if cfg.OpenAIAPIKey == "" && fc.OpenAI.APIKey != "" {
		cfg.OpenAIAPIKey = fc.OpenAI.APIKey
	}
	if cfg.OpenAIOrgID == "" && fc.OpenAI.OrgID != "" {
		cfg.OpenAIOrgID = fc.OpenAI.OrgID
	}
	if (cfg.OpenAIModel == "" || cfg.OpenAIModel == defaults.OpenAIModel) && fc.OpenAI.Model != "" {
		cfg.OpenAIModel = fc.OpenAI.Model
	}
	if cfg.SerperAPIKey == "" && fc.Serper.APIKey != "" {
		cfg.SerperAPIKey = fc.Serper.APIKey
	}

	if (cfg.SerpMaxRPS == 0 || cfg.SerpMaxRPS == defaults.SerpMaxRPS) && fc.Limits.SerpMaxRPS > 0 {
		cfg.SerpMaxRPS = fc.Limits.SerpMaxRPS
	}
	if (cfg.SerpConcurrency == 0 || cfg.SerpConcurrency == defaults.SerpConcurrency) && fc.Limits.SerpConcurrency > 0 {
		cfg.SerpConcurrency = fc.Limits.SerpConcurrency
	}
	if (cfg.OpenAIConcurrency == 0 || cfg.OpenAIConcurrency == defaults.OpenAIConcurrency) && fc.Limits.OpenAIConcurrency > 0 {
		cfg.OpenAIConcurrency = fc.Limits.OpenAIConcurrency
	}
	if (cfg.MaxRetries == 0 || cfg.MaxRetries == defaults.MaxRetries) && fc.Limits.MaxRetries > 0 {
		cfg.MaxRetries = fc.Limits.MaxRetries
	}
	if (cfg.MaxCandidatesPerCompany == 0 || cfg.MaxCandidatesPerCompany == defaults.MaxCandidatesPerCompany) && fc.Limits.MaxCandidatesPerCompany > 0 {
		cfg.MaxCandidatesPerCompany = fc.Limits.MaxCandidatesPerCompany
	}
	if (cfg.SearchResultsPerCall == 0 || cfg.SearchResultsPerCall == defaults.SearchResultsPerCall) && fc.Limits.SearchResultsPerCall > 0 {
		cfg.SearchResultsPerCall = fc.Limits.SearchResultsPerCall
	}
	if (cfg.BackoffBase == 0 || cfg.BackoffBase == defaults.BackoffBase) && fc.BackoffBase > 0 {
		cfg.BackoffBase = fc.BackoffBase
	}
	if (cfg.HTTPConnectTimeout == 0 || cfg.HTTPConnectTimeout == defaults.HTTPConnectTimeout) && fc.HTTP.ConnectTimeout > 0 {
		cfg.HTTPConnectTimeout = fc.HTTP.ConnectTimeout
	}
	if (cfg.HTTPReadTimeout == 0 || cfg.HTTPReadTimeout == defaults.HTTPReadTimeout) && fc.HTTP.ReadTimeout > 0 {
		cfg.HTTPReadTimeout = fc.HTTP.ReadTimeout
	}
	if !cfg.EnableDNSCheck && fc.DNS.Enable {
		cfg.EnableDNSCheck = true
	}
	if (cfg.DNSTimeout == 0 || cfg.DNSTimeout == defaults.DNSTimeout) && fc.DNS.Timeout > 0 {
		cfg.DNSTimeout = fc.DNS.Timeout
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

// Validate performs the minimal schema validation needed before the
// batch driver starts: the two API keys and the input/output paths.
func Validate(cfg Config) error {
	if trim(cfg.InputPath) == "" {
		return errors.New("config: input path is required")
	}
	if trim(cfg.OutputPath) == "" {
		return errors.New("config: output path is required")
	}
	if trim(cfg.OpenAIAPIKey) == "" {
		return errors.New("config: OPENAI_API_KEY is required")
	}
	if trim(cfg.SerperAPIKey) == "" {
		return errors.New("config: SERPER_API_KEY is required")
	}
	if cfg.MaxCandidatesPerCompany < 1 || cfg.SearchResultsPerCall < 1 {
		return errors.New("config: candidate/result limits must be positive")
	}
	return nil
}

func trim(s string) string {
	return strings.TrimSpace(s)
}
