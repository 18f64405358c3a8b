// Package config loads the application settings from a YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/scriptorium/ai"
	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/dedupe"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/importer"
	"github.com/poiesic/scriptorium/pipeline"
	"github.com/poiesic/scriptorium/reembed"
)

// ErrConfiguration marks settings that make a run impossible. Commands check
// for it before touching the store.
var ErrConfiguration = errors.New("configuration error")

// DefaultAPIKeyEnv is the variable holding the embedding service key.
const DefaultAPIKeyEnv = "DASHSCOPE_API_KEY"

// DatabaseConfig locates the knowledge store.
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// EmbeddingConfig configures the embedding service and the retry policy.
type EmbeddingConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Dimension     int           `yaml:"dimension"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxInputChars int           `yaml:"max_input_chars"`
	BatchSize     int           `yaml:"batch_size"`
	BatchPause    time.Duration `yaml:"batch_pause"`
	Normalize     bool          `yaml:"normalize"`
}

// ImportConfig configures dedupe and import.
type ImportConfig struct {
	BatchSize        int `yaml:"batch_size"`
	PrefixLen        int `yaml:"prefix_len"`
	SnapshotPageSize int `yaml:"snapshot_page_size"`
	ExpectedTotal    int `yaml:"expected_total"`
}

// PurgeConfig configures duplicate deletion in the store.
type PurgeConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Pause     time.Duration `yaml:"pause"`
}

// ReembedConfig configures the regeneration pass.
type ReembedConfig struct {
	PageSize int           `yaml:"page_size"`
	Pause    time.Duration `yaml:"pause"`
}

// Config is the root application configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Import    ImportConfig    `yaml:"import"`
	Purge     PurgeConfig     `yaml:"purge"`
	Reembed   ReembedConfig   `yaml:"reembed"`
	LogLevel  string          `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. An empty path returns the defaults; a
// path that does not exist is a configuration error. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file %s not found", ErrConfiguration, path)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and fills in defaults for zero values.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadEnv loads variables from the given .env files, or ./.env when none
// are named. Missing files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := ai.DefaultConfig()
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = def.EmbeddingHost
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = def.EmbeddingModel
	}
	if c.Embedding.APIKeyEnv == "" {
		c.Embedding.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = core.DefaultDimension
	}
	if c.Embedding.MaxAttempts == 0 {
		c.Embedding.MaxAttempts = embed.DefaultMaxAttempts
	}
	if c.Embedding.RetryDelay == 0 {
		c.Embedding.RetryDelay = embed.DefaultBaseDelay
	}
	if c.Embedding.MaxInputChars == 0 {
		c.Embedding.MaxInputChars = embed.DefaultMaxInputChars
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = embed.DefaultBatchSize
	}
	if c.Embedding.BatchPause == 0 {
		c.Embedding.BatchPause = embed.DefaultBatchPause
	}
	if c.Import.BatchSize == 0 {
		c.Import.BatchSize = importer.DefaultBatchSize
	}
	if c.Import.PrefixLen == 0 {
		c.Import.PrefixLen = core.DefaultPrefixLen
	}
	if c.Import.SnapshotPageSize == 0 {
		c.Import.SnapshotPageSize = dedupe.DefaultPageSize
	}
	if c.Purge.BatchSize == 0 {
		c.Purge.BatchSize = dedupe.DefaultDeleteBatchSize
	}
	if c.Purge.Pause == 0 {
		c.Purge.Pause = dedupe.DefaultDeletePause
	}
	if c.Reembed.PageSize == 0 {
		c.Reembed.PageSize = reembed.DefaultPageSize
	}
	if c.Reembed.Pause == 0 {
		c.Reembed.Pause = reembed.DefaultPause
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ValidateDatabase checks the store settings.
func (c *Config) ValidateDatabase() error {
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrConfiguration)
	}
	return nil
}

// APIKey resolves the embedding key from the environment.
func (c *Config) APIKey() (string, error) {
	key := os.Getenv(c.Embedding.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrConfiguration, c.Embedding.APIKeyEnv)
	}
	return key, nil
}

// AIConfig builds a validated embedding client configuration.
func (c *Config) AIConfig() (*ai.Config, error) {
	key, err := c.APIKey()
	if err != nil {
		return nil, err
	}
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.BaseURL),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(key),
		ai.WithDimension(c.Embedding.Dimension),
	)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return cfg, nil
}

// GeneratorOptions returns the embedding generator settings.
func (c *Config) GeneratorOptions() embed.Options {
	return embed.Options{
		Model:         c.Embedding.Model,
		Dimension:     c.Embedding.Dimension,
		MaxAttempts:   c.Embedding.MaxAttempts,
		BaseDelay:     c.Embedding.RetryDelay,
		MaxInputChars: c.Embedding.MaxInputChars,
		Normalize:     c.Embedding.Normalize,
	}
}

// PipelineConfig returns the import pipeline settings for one run.
func (c *Config) PipelineConfig(mode core.Mode, resume bool) pipeline.Config {
	return pipeline.Config{
		PrefixLen:        c.Import.PrefixLen,
		EmbedBatchSize:   c.Embedding.BatchSize,
		EmbedPause:       c.Embedding.BatchPause,
		ImportBatchSize:  c.Import.BatchSize,
		SnapshotPageSize: c.Import.SnapshotPageSize,
		Resume:           resume,
		Mode:             mode,
		ExpectedTotal:    c.Import.ExpectedTotal,
		Dimension:        c.Embedding.Dimension,
	}
}

// PurgeOptions returns the duplicate purge settings.
func (c *Config) PurgeOptions(mode core.Mode) dedupe.PurgeOptions {
	return dedupe.PurgeOptions{
		PrefixLen: c.Import.PrefixLen,
		BatchSize: c.Purge.BatchSize,
		PageSize:  c.Import.SnapshotPageSize,
		Pause:     c.Purge.Pause,
		Mode:      mode,
	}
}

// ReembedConfig returns the regeneration pass settings.
func (c *Config) ReembedConfig(mode core.Mode) *reembed.Config {
	cfg := reembed.DefaultConfig()
	cfg.PageSize = c.Reembed.PageSize
	cfg.Pause = c.Reembed.Pause
	cfg.Mode = mode
	return cfg
}
