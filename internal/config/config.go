// Package config loads assoc-memory settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rcliao/assoc-memory/internal/embedding"
	"github.com/rcliao/assoc-memory/internal/oracle"
)

const (
	envPrefix = "ASSOC_MEMORY"
	dirName   = ".assoc-memory"
)

// Config is the resolved configuration.
type Config struct {
	DBPath     string           `mapstructure:"db"`
	LogLevel   string           `mapstructure:"log_level"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Features   FeatureConfig    `mapstructure:"features"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Index      IndexConfig      `mapstructure:"index"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
}

type EmbeddingConfig struct {
	Provider      string `mapstructure:"provider"`
	Model         string `mapstructure:"model"`
	URL           string `mapstructure:"url"`
	APIKey        string `mapstructure:"api_key"`
	Dimensions    int    `mapstructure:"dimensions"`
	Concurrency   int    `mapstructure:"concurrency"`
	ModelPath     string `mapstructure:"model_path"`
	TokenizerPath string `mapstructure:"tokenizer_path"`
	LibraryPath   string `mapstructure:"library_path"`
}

type OracleConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`
}

// FeatureConfig toggles the oracle-backed pipeline steps.
type FeatureConfig struct {
	Links      bool `mapstructure:"links"`
	Evolution  bool `mapstructure:"evolution"`
	Enrichment bool `mapstructure:"enrichment"`
}

type RateLimitConfig struct {
	MaxCalls int           `mapstructure:"max_calls"`
	Window   time.Duration `mapstructure:"window"`
}

type IndexConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MinCorpus int  `mapstructure:"min_corpus"`
}

type EnrichmentConfig struct {
	Retries         int           `mapstructure:"retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
}

// DefaultDir returns ~/.assoc-memory.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, dirName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", filepath.Join(DefaultDir(), "memory.db"))
	v.SetDefault("log_level", "warn")

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.model_path", "")
	v.SetDefault("embedding.tokenizer_path", "")
	v.SetDefault("embedding.library_path", "")

	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", oracle.DefaultModel)
	v.SetDefault("oracle.max_tokens", oracle.DefaultMaxTokens)
	v.SetDefault("oracle.base_url", "")

	v.SetDefault("features.links", true)
	v.SetDefault("features.evolution", true)
	v.SetDefault("features.enrichment", true)

	v.SetDefault("rate_limit.max_calls", 10)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("index.enabled", true)
	v.SetDefault("index.min_corpus", 1000)

	v.SetDefault("enrichment.retries", 3)
	v.SetDefault("enrichment.initial_interval", time.Second)
}

// Load resolves configuration into v. cfgFile may be empty, in which case
// ~/.assoc-memory/config.yaml is read if present.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// provider-conventional variables
	if err := v.BindEnv("oracle.api_key", envPrefix+"_ORACLE_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("embedding.api_key", envPrefix+"_EMBEDDING_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.RateLimit.MaxCalls <= 0 || cfg.RateLimit.Window <= 0 {
		return nil, fmt.Errorf("rate_limit: max_calls and window must be positive")
	}
	return &cfg, nil
}

// EmbeddingConfig converts to the embedding provider config.
func (c *Config) EmbeddingConfig() embedding.Config {
	e := c.Embedding
	return embedding.Config{
		Provider:      e.Provider,
		Model:         e.Model,
		URL:           e.URL,
		APIKey:        e.APIKey,
		Dimensions:    e.Dimensions,
		Concurrency:   e.Concurrency,
		ModelPath:     e.ModelPath,
		TokenizerPath: e.TokenizerPath,
		LibraryPath:   e.LibraryPath,
	}
}

// OracleConfig converts to the Claude oracle config.
func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		APIKey:    c.Oracle.APIKey,
		Model:     c.Oracle.Model,
		MaxTokens: c.Oracle.MaxTokens,
		BaseURL:   c.Oracle.BaseURL,
	}
}
