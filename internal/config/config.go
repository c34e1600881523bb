// Package config loads mend configuration from YAML with environment
// overrides layered on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mend configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Learning loop configuration
	Learning LearningConfig `yaml:"learning"`

	// Test harness configuration
	Harness HarnessConfig `yaml:"harness"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the patch generator and critic models.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"`
}

// LearningConfig bounds the episode loop and the context bundle.
type LearningConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	MaxCandidates int `yaml:"max_candidates"`
	Parallelism   int `yaml:"parallelism"`
	RetrievalK    int `yaml:"retrieval_k"`
	SkillK        int `yaml:"skill_k"`
	EmbeddingDim  int `yaml:"embedding_dim"`
	MaxTasks      int `yaml:"max_tasks"`
}

// HarnessConfig configures the external gate and test executor.
type HarnessConfig struct {
	Command       []string `yaml:"command"`
	Timeout       string   `yaml:"timeout"`
	MaxPatchBytes int      `yaml:"max_patch_bytes"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	ReportPath   string `yaml:"report_path"`
}

// LoggingConfig configures the category log files.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug, info, warn, error
	Directory string `yaml:"directory"`
	Console   bool   `yaml:"console"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "mend",
		Version: "0.3.0",

		LLM: LLMConfig{
			Model:       "gemini-2.0-flash",
			Temperature: 0.2,
			Timeout:     "120s",
		},

		Learning: LearningConfig{
			MaxAttempts:   6,
			MaxCandidates: 6,
			Parallelism:   4,
			RetrievalK:    3,
			SkillK:        2,
			EmbeddingDim:  2048,
		},

		Harness: HarnessConfig{
			Timeout:       "600s",
			MaxPatchBytes: 1 << 20,
		},

		Store: StoreConfig{
			DatabasePath: "data/mend.db",
			ReportPath:   "data/report.json",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Directory: "logs",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment overrides always apply last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("MEND_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("MEND_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("MEND_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("MEND_REPORT"); path != "" {
		c.Store.ReportPath = path
	}
	if level := os.Getenv("MEND_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("MEND_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Learning.Parallelism = n
		}
	}
	if v := os.Getenv("MEND_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Learning.MaxAttempts = n
		}
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetHarnessTimeout returns the harness timeout as a duration.
func (c *Config) GetHarnessTimeout() time.Duration {
	d, err := time.ParseDuration(c.Harness.Timeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or MEND_API_KEY)")
	}
	if c.Learning.MaxAttempts <= 0 {
		return fmt.Errorf("learning.max_attempts must be positive, got %d", c.Learning.MaxAttempts)
	}
	if c.Learning.EmbeddingDim <= 0 {
		return fmt.Errorf("learning.embedding_dim must be positive, got %d", c.Learning.EmbeddingDim)
	}
	return nil
}
