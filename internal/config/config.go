// Package config provides configuration loading and validation for the CLI
// and server.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/resume-optimizer/internal/llm"
)

// Defaults applied by MergeWithDefaults when neither the file nor a flag
// sets a value.
const (
	DefaultOutputDir   = "output"
	DefaultIndexDir    = ".knowledge"
	DefaultChunkTokens = 400
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults, CLI flags or the
// environment.
type Config struct {
	// Run inputs
	JobURL  string `json:"job_url,omitempty"`
	Company string `json:"company,omitempty"`
	Resume  string `json:"resume,omitempty"` // Path to the resume document (PDF or text)

	// Storage
	OutputDir   string `json:"output_dir,omitempty"`   // Artifact directory for the file store
	IndexDir    string `json:"index_dir,omitempty"`    // Knowledge index directory
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL artifact store and run history

	// Reasoning service
	Provider     string `json:"provider,omitempty"` // openai, gemini or anthropic
	Model        string `json:"model,omitempty"`    // Overrides every model tier
	APIKey       string `json:"api_key,omitempty"`
	SearchAPIKey string `json:"search_api_key,omitempty"` // Google Custom Search key
	SearchCX     string `json:"search_cx,omitempty"`      // Google Custom Search engine ID

	// Behavior
	Embeddings  bool `json:"embeddings,omitempty"`   // Rank knowledge chunks by embedding similarity
	UseBrowser  bool `json:"use_browser,omitempty"`  // Use headless browser for SPA job pages
	Verbose     bool `json:"verbose,omitempty"`      // Print detailed artifact summaries
	ChunkTokens int  `json:"chunk_tokens,omitempty"` // Token budget per knowledge chunk
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Required run inputs are checked after flags are merged, by the pipeline.
func (c *Config) Validate() error {
	if c.JobURL != "" {
		u, err := url.Parse(c.JobURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config error: 'job_url' must be an http(s) URL: %s", c.JobURL)
		}
	}

	if c.Provider != "" {
		if _, err := llm.ParseProvider(c.Provider); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}

	if c.ChunkTokens < 0 {
		return fmt.Errorf("config error: 'chunk_tokens' must be non-negative")
	}

	if (c.SearchAPIKey == "") != (c.SearchCX == "") {
		return fmt.Errorf("config error: 'search_api_key' and 'search_cx' must be set together")
	}

	if c.Resume != "" {
		if _, err := os.Stat(c.Resume); os.IsNotExist(err) {
			return fmt.Errorf("config error: resume file not found: %s", c.Resume)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults,
// then from the package defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	fill := func(dst *string, def, fallback string) {
		if *dst == "" {
			*dst = def
		}
		if *dst == "" {
			*dst = fallback
		}
	}
	fill(&result.JobURL, defaults.JobURL, "")
	fill(&result.Company, defaults.Company, "")
	fill(&result.Resume, defaults.Resume, "")
	fill(&result.OutputDir, defaults.OutputDir, DefaultOutputDir)
	fill(&result.IndexDir, defaults.IndexDir, DefaultIndexDir)
	fill(&result.DatabaseURL, defaults.DatabaseURL, "")
	fill(&result.Provider, defaults.Provider, string(llm.ProviderOpenAI))
	fill(&result.Model, defaults.Model, "")
	fill(&result.APIKey, defaults.APIKey, "")
	fill(&result.SearchAPIKey, defaults.SearchAPIKey, "")
	fill(&result.SearchCX, defaults.SearchCX, "")

	// Int fields: use default if zero
	if result.ChunkTokens == 0 {
		result.ChunkTokens = defaults.ChunkTokens
	}
	if result.ChunkTokens == 0 {
		result.ChunkTokens = DefaultChunkTokens
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// APIKeyEnv returns the environment variable holding the key for provider.
func APIKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case string(llm.ProviderGemini):
		return "GEMINI_API_KEY"
	case string(llm.ProviderAnthropic):
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// ApplyEnv fills credentials and the database URL from the environment when
// they are still empty.
func (c *Config) ApplyEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(APIKeyEnv(c.Provider))
	}
	if c.SearchAPIKey == "" {
		c.SearchAPIKey = os.Getenv("GOOGLE_SEARCH_API_KEY")
	}
	if c.SearchCX == "" {
		c.SearchCX = os.Getenv("GOOGLE_SEARCH_CX")
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
}

// LLMConfig returns the reasoning service configuration for the provider,
// with every tier pinned to Model when it is set.
func (c *Config) LLMConfig() (*llm.Config, error) {
	p, err := llm.ParseProvider(c.Provider)
	if err != nil {
		return nil, err
	}
	cfg := llm.ConfigFor(p)
	if c.Model != "" {
		cfg = cfg.WithAllTiers(c.Model)
	}
	return cfg, nil
}
