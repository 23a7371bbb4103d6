package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avieira/designgen/provider/flux"
	"github.com/avieira/designgen/proxy"
)

// serverConfig is the optional yaml configuration for the serve command.
// Every field has a working default; the file only needs the overrides.
type serverConfig struct {
	Listen string `yaml:"listen"`

	Flux struct {
		BaseURL         string        `yaml:"base_url"`
		KeyEnvVar       string        `yaml:"key_env_var"`
		PollInterval    time.Duration `yaml:"poll_interval"`
		MaxPollAttempts int           `yaml:"max_poll_attempts"`
	} `yaml:"flux"`
}

func defaultServerConfig() serverConfig {
	var cfg serverConfig
	cfg.Listen = ":8080"
	cfg.Flux.BaseURL = flux.DefaultBaseURL
	cfg.Flux.KeyEnvVar = proxy.DefaultKeyEnvVar
	cfg.Flux.PollInterval = flux.DefaultPollInterval
	cfg.Flux.MaxPollAttempts = flux.DefaultMaxPollAttempts
	return cfg
}

// loadServerConfig reads the yaml config file, layering it over defaults.
// An empty path returns the defaults.
func loadServerConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Flux.KeyEnvVar == "" {
		cfg.Flux.KeyEnvVar = proxy.DefaultKeyEnvVar
	}
	if cfg.Flux.PollInterval <= 0 {
		cfg.Flux.PollInterval = flux.DefaultPollInterval
	}
	if cfg.Flux.MaxPollAttempts <= 0 {
		cfg.Flux.MaxPollAttempts = flux.DefaultMaxPollAttempts
	}
	return cfg, nil
}
