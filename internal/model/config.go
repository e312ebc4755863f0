package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ArchiveConfig locates the local mail archive.
type ArchiveConfig struct {
	// DBPath is the metadata database of the archive.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// MailDir is the directory holding one EML file per message.
	MailDir string `mapstructure:"mail_dir" yaml:"mail_dir"`

	// LinkBaseURL is prefixed to a message uid to build its web link.
	LinkBaseURL string `mapstructure:"link_base_url" yaml:"link_base_url"`

	// MaxRecords bounds how many records a single load returns.
	MaxRecords int `mapstructure:"max_records" yaml:"max_records"`
}

// CacheConfig holds classification cache settings.
type CacheConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// VersionInvalidation treats entries written by a different service
	// version as unusable.
	VersionInvalidation bool `mapstructure:"version_invalidation" yaml:"version_invalidation"`
}

// ClassifierConfig holds the bounded classifier settings.
type ClassifierConfig struct {
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency"`
	CallTimeout   time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	MaxBodyChars  int           `mapstructure:"max_body_chars" yaml:"max_body_chars"`
	SubjectWindow time.Duration `mapstructure:"subject_window" yaml:"subject_window"`
}

// AIConfig holds settings for the Claude service client.
type AIConfig struct {
	Model             string  `mapstructure:"model" yaml:"model"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	ServiceVersion    string  `mapstructure:"service_version" yaml:"service_version"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// SearchConfig holds candidate ranking settings.
type SearchConfig struct {
	MaxCandidates   int           `mapstructure:"max_candidates" yaml:"max_candidates"`
	TopK            int           `mapstructure:"top_k" yaml:"top_k"`
	SynthSources    int           `mapstructure:"synth_sources" yaml:"synth_sources"`
	KeywordWeight   float64       `mapstructure:"keyword_weight" yaml:"keyword_weight"`
	SenderWeight    float64       `mapstructure:"sender_weight" yaml:"sender_weight"`
	RecencyWeight   float64       `mapstructure:"recency_weight" yaml:"recency_weight"`
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life" yaml:"recency_half_life"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Archive    ArchiveConfig    `mapstructure:"archive" yaml:"archive"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	AI         AIConfig         `mapstructure:"ai" yaml:"ai"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailbrief/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailbrief", "config.yaml")
}

// mailRoot is the directory the archive and cache live under by default.
func mailRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "MAIL"
	}
	return filepath.Join(home, "MAIL")
}

func setDefaults(v *viper.Viper) {
	root := mailRoot()
	v.SetDefault("archive.db_path", filepath.Join(root, "gmail", "msg-db.sqlite"))
	v.SetDefault("archive.mail_dir", filepath.Join(root, "gmail"))
	v.SetDefault("archive.link_base_url", "https://mail.google.com/mail/u/0/#all")
	v.SetDefault("archive.max_records", 10000)

	v.SetDefault("cache.db_path", filepath.Join(root, "classification_cache.sqlite"))
	v.SetDefault("cache.version_invalidation", false)

	v.SetDefault("classifier.concurrency", 5)
	v.SetDefault("classifier.call_timeout", 90*time.Second)
	v.SetDefault("classifier.max_body_chars", 2000)
	v.SetDefault("classifier.subject_window", 72*time.Hour)

	v.SetDefault("ai.model", "claude-haiku-4-5")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.service_version", "")
	v.SetDefault("ai.base_url", "https://api.anthropic.com")
	v.SetDefault("ai.requests_per_second", 0)
	v.SetDefault("ai.max_retries", 2)

	v.SetDefault("search.max_candidates", 100)
	v.SetDefault("search.top_k", 10)
	v.SetDefault("search.synth_sources", 7)
	v.SetDefault("search.keyword_weight", 1.0)
	v.SetDefault("search.sender_weight", 5.0)
	v.SetDefault("search.recency_weight", 2.0)
	v.SetDefault("search.recency_half_life", 30*24*time.Hour)
	v.SetDefault("search.query_timeout", 120*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file yields the defaults. Environment variables prefixed with
// MAILBRIEF_ override file values (MAILBRIEF_AI_MODEL -> ai.model).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILBRIEF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.AI.ServiceVersion == "" {
		cfg.AI.ServiceVersion = cfg.AI.Model
	}
	cfg.Archive.DBPath = expandHome(cfg.Archive.DBPath)
	cfg.Archive.MailDir = expandHome(cfg.Archive.MailDir)
	cfg.Cache.DBPath = expandHome(cfg.Cache.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings that have no safe fallback.
func (c *AppConfig) Validate() error {
	if c.Classifier.Concurrency < 1 {
		return fmt.Errorf("classifier.concurrency must be at least 1, got %d", c.Classifier.Concurrency)
	}
	if c.Classifier.CallTimeout <= 0 {
		return fmt.Errorf("classifier.call_timeout must be positive")
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Search.MaxCandidates < c.Search.TopK {
		return fmt.Errorf("search.max_candidates (%d) must be >= search.top_k (%d)",
			c.Search.MaxCandidates, c.Search.TopK)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
