// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// SessionConfig holds polling configuration for an orchestrator-side session.
type SessionConfig struct {
	PollInterval    time.Duration // How often pollers tick
	LogPollInterval time.Duration // How often log tailers tick
	RetryBudget     int           // Consecutive transient poll failures before the session turns fatal
	MetricsPort     string
}

// LoadSessionConfig loads session configuration from environment variables.
func LoadSessionConfig() *SessionConfig {
	return &SessionConfig{
		PollInterval:    GetDurationEnv("JOBPIPE_POLL_INTERVAL", time.Second),
		LogPollInterval: GetDurationEnv("JOBPIPE_LOG_POLL_INTERVAL", 2*time.Second),
		RetryBudget:     GetIntEnv("JOBPIPE_RETRY_BUDGET", 5),
		MetricsPort:     GetEnv("JOBPIPE_METRICS_PORT", "9090"),
	}
}
