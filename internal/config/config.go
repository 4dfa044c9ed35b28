// Package config loads the application configuration: a YAML file under
// the XDG config directory, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/autodidact/internal/llm"
	"github.com/abhisek/autodidact/internal/logging"
)

// Config is the full application configuration.
type Config struct {
	LLM     llm.Config     `yaml:"llm"`
	Session SessionConfig  `yaml:"session"`
	Profile ProfileConfig  `yaml:"profile"`
	Logging logging.Config `yaml:"logging"`

	// LearnerID identifies the learner whose profile is used when no
	// --learner flag is given.
	LearnerID string `yaml:"learner_id"`
}

// SessionConfig tunes the tutoring session engine.
type SessionConfig struct {
	InterruptionThreshold time.Duration `yaml:"interruption_threshold"`
	TranscriptWindow      int           `yaml:"transcript_window"`
	// DirectivePolicy is "first-wins" or "sequential".
	DirectivePolicy string  `yaml:"directive_policy"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

// ProfileConfig tunes the profile update pipeline.
type ProfileConfig struct {
	MinConfidence float64       `yaml:"min_confidence"`
	Timeout       time.Duration `yaml:"timeout"`
	KeepRevisions int           `yaml:"keep_revisions"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: llm.DefaultConfig(),
		Session: SessionConfig{
			InterruptionThreshold: 10 * time.Minute,
			TranscriptWindow:      20,
			DirectivePolicy:       "first-wins",
			MaxTokens:             1024,
			Temperature:           0.7,
		},
		Profile: ProfileConfig{
			MinConfidence: 0.6,
			Timeout:       2 * time.Minute,
			KeepRevisions: 20,
		},
		Logging:   logging.Config{Level: "info"},
		LearnerID: "default",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/autodidact/config.yaml.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autodidact", "config.yaml"), nil
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	llm.ApplyEnv(&c.LLM)

	if v := os.Getenv("AUTODIDACT_INTERRUPTION_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.InterruptionThreshold = d
		}
	}
	if v := os.Getenv("AUTODIDACT_TRANSCRIPT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.TranscriptWindow = n
		}
	}
	if v := os.Getenv("AUTODIDACT_DIRECTIVE_POLICY"); v != "" {
		c.Session.DirectivePolicy = v
	}
	if v := os.Getenv("AUTODIDACT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUTODIDACT_LEARNER"); v != "" {
		c.LearnerID = v
	}
}

func (c *Config) validate() error {
	if c.Session.InterruptionThreshold <= 0 {
		return fmt.Errorf("session.interruption_threshold must be positive")
	}
	if c.Session.TranscriptWindow <= 0 {
		return fmt.Errorf("session.transcript_window must be positive")
	}
	switch c.Session.DirectivePolicy {
	case "first-wins", "sequential":
	default:
		return fmt.Errorf("session.directive_policy must be first-wins or sequential, got %q", c.Session.DirectivePolicy)
	}
	if c.Profile.MinConfidence < 0 || c.Profile.MinConfidence > 1 {
		return fmt.Errorf("profile.min_confidence must be within [0, 1]")
	}
	if c.LearnerID == "" {
		return fmt.Errorf("learner_id must not be empty")
	}
	return nil
}
