package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"jobpipe/internal/config"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	RunID           string            `mapstructure:"run-id"`
	Labels          map[string]string `mapstructure:"labels"`
	Image           string            `mapstructure:"image"`
	WorkDir         string            `mapstructure:"work-dir"`
	Codec           string            `mapstructure:"codec"`
	PollInterval    time.Duration     `mapstructure:"poll-interval"`
	LogPollInterval time.Duration     `mapstructure:"log-poll-interval"`
	RetryBudget     int               `mapstructure:"retry-budget"`
	MetricsPort     string            `mapstructure:"metrics-port"`
	ForwardURL      string            `mapstructure:"forward-url"`
	ForwardKey      string            `mapstructure:"forward-key"`
	LogFiles        []string          `mapstructure:"log-files"`
	PullImages      bool              `mapstructure:"pull-images"`
	ConfigPath      string            `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	// Environment-derived defaults, overridable by the config file.
	session := config.LoadSessionConfig()

	v := viper.New()
	v.SetEnvPrefix("JOBPIPE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("work-dir", "")
	v.SetDefault("codec", "jsonl")
	v.SetDefault("poll-interval", session.PollInterval)
	v.SetDefault("log-poll-interval", session.LogPollInterval)
	v.SetDefault("retry-budget", session.RetryBudget)
	v.SetDefault("metrics-port", session.MetricsPort)
	v.SetDefault("pull-images", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.Codec != "jsonl" && cfg.Codec != "cbor" {
		return cfg, fmt.Errorf("invalid codec: %q", cfg.Codec)
	}
	if cfg.RetryBudget < 0 {
		return cfg, fmt.Errorf("invalid retry-budget: %d", cfg.RetryBudget)
	}

	return cfg, nil
}
