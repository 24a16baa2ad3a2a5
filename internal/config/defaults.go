package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig              `mapstructure:"server" yaml:"server"`
	Queue     QueueConfig               `mapstructure:"queue" yaml:"queue"`
	Parser    ParserConfig              `mapstructure:"parser" yaml:"parser"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// QueueConfig configures worker behavior.
type QueueConfig struct {
	Workers             int `mapstructure:"workers" yaml:"workers"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

// ParserConfig configures chunking and provider selection.
type ParserConfig struct {
	ChunkSize       int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	DefaultProvider string `mapstructure:"default_provider" yaml:"default_provider"`
}

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	Type              string `mapstructure:"type" yaml:"type"`
	Model             string `mapstructure:"model" yaml:"model"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:8470",
		},
		Queue: QueueConfig{
			Workers:             1,
			PollIntervalSeconds: 5,
		},
		Parser: ParserConfig{
			ChunkSize:       4000,
			DefaultProvider: "openrouter",
		},
		Providers: map[string]ProviderConfig{
			"openrouter": {
				Type:              "openrouter",
				Model:             "anthropic/claude-sonnet-4.5",
				APIKey:            "${OPENROUTER_API_KEY}",
				RequestsPerMinute: 150,
				TimeoutSeconds:    120,
				Enabled:           true,
			},
			"openai": {
				Type:              "openai",
				Model:             "gpt-4o",
				APIKey:            "${OPENAI_API_KEY}",
				RequestsPerMinute: 300,
				TimeoutSeconds:    120,
				Enabled:           false,
			},
		},
	}
}

// WriteDefault writes the default config as YAML to path. Fails if the file
// already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
