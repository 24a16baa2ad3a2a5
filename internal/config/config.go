// Package config handles loading and hot-reloading configuration from file,
// environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"offbook/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// cfgFile may be empty, in which case the default search paths are used.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("server.listen", defaults.Server.Listen)
	viper.SetDefault("queue.workers", defaults.Queue.Workers)
	viper.SetDefault("queue.poll_interval_seconds", defaults.Queue.PollIntervalSeconds)
	viper.SetDefault("parser.chunk_size", defaults.Parser.ChunkSize)
	viper.SetDefault("parser.default_provider", defaults.Parser.DefaultProvider)
	viper.SetDefault("providers", defaults.Providers)

	// Environment variables with OFFBOOK_ prefix
	viper.SetEnvPrefix("OFFBOOK")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.offbook")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// BuildRegistry constructs LLM clients for every enabled provider in the
// config. API keys have their ${ENV_VAR} references resolved here.
func (c *Config) BuildRegistry(logger *slog.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	if logger != nil {
		registry.SetLogger(logger)
	}

	for name, pc := range c.Providers {
		if !pc.Enabled {
			continue
		}
		timeout := time.Duration(pc.TimeoutSeconds) * time.Second

		switch pc.Type {
		case "openrouter":
			registry.Register(name, providers.NewOpenRouterClient(providers.OpenRouterConfig{
				APIKey:  ResolveEnvVars(pc.APIKey),
				Model:   pc.Model,
				RPM:     pc.RequestsPerMinute,
				Timeout: timeout,
			}))
		case "openai":
			registry.Register(name, providers.NewOpenAIClient(providers.OpenAIConfig{
				APIKey:  ResolveEnvVars(pc.APIKey),
				Model:   pc.Model,
				RPM:     pc.RequestsPerMinute,
				Timeout: timeout,
			}))
		case "mock":
			registry.Register(name, providers.NewMockClient())
		default:
			return nil, fmt.Errorf("unknown provider type %q for provider %q", pc.Type, name)
		}
	}

	return registry, nil
}
