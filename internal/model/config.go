package model

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultFields are the fields scanned when the configuration names none.
// They are a dashboard default; the analyzer itself accepts any field set.
var DefaultFields = []string{
	"security_training_frequency",
	"information_security_risk_assessment_frequency",
	"recovery_time_objective",
	"password_minimum_length",
}

// Config is the complete concord configuration
type Config struct {
	Analysis     AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	HTTP         HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Provenance   ProvenanceConfig  `yaml:"provenance" mapstructure:"provenance"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
	Logging      LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
}

// AnalysisConfig controls which fields are analysed and how duplicates resolve
type AnalysisConfig struct {
	Fields     []string `yaml:"fields" mapstructure:"fields"`         // Empty means every field
	Duplicates string   `yaml:"duplicates" mapstructure:"duplicates"` // last-wins, first-wins, flag
}

// HTTPConfig controls remote fact index retrieval
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls report caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig controls worker counts
type ConcurrencyConfig struct {
	Workers           int `yaml:"workers" mapstructure:"workers"`                       // Batch sources in parallel
	ProvenanceWorkers int `yaml:"provenance_workers" mapstructure:"provenance_workers"` // Sentence lookups in parallel
}

// RateLimitConfig controls per-host request pacing for remote sources
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ProvenanceConfig controls source sentence lookup
type ProvenanceConfig struct {
	DocumentsDir string `yaml:"documents_dir" mapstructure:"documents_dir"` // Empty disables lookup
	ContextChars int    `yaml:"context_chars" mapstructure:"context_chars"`
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // console or json
}

// LLMConfig controls the optional summary
type LLMConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"` // openai, ollama, "" (disabled)
	Model        string `yaml:"model" mapstructure:"model"`
	APIKey       string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL      string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout      int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	StrictFields bool   `yaml:"strict_fields" mapstructure:"strict_fields"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	cacheDir := filepath.Join(os.TempDir(), "concord-cache")
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".concord", "cache")
	}

	fields := make([]string, len(DefaultFields))
	copy(fields, DefaultFields)

	return &Config{
		Analysis: AnalysisConfig{
			Fields:     fields,
			Duplicates: "last-wins",
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Concord/0.1 (+https://github.com/ppiankov/concord)",
			MaxBodyBytes:  10 << 20,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:           runtime.NumCPU(),
			ProvenanceWorkers: 8,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		Provenance: ProvenanceConfig{
			ContextChars: 200,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		LLM: LLMConfig{
			Timeout:      30,
			MaxTokens:    800,
			StrictFields: true,
		},
	}
}
