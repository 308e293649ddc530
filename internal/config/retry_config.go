// Package config defines retry and DLQ configuration.
package config

import "github.com/feedpipeline/feedsvc/internal/domain"

// GetRetryConfig builds the domain retry policy from the configured RETRY_*
// knobs. The CDC and events consumers do not call it: their batch
// retry-then-dead-letter loop uses domain.DefaultRetryConfig().
func (c Config) GetRetryConfig() domain.RetryConfig {
	rc := domain.DefaultRetryConfig()
	rc.MaxRetries = c.RetryMaxRetries
	rc.InitialDelay = c.RetryInitialDelay
	rc.MaxDelay = c.RetryMaxDelay
	rc.Multiplier = c.RetryMultiplier
	rc.Jitter = c.RetryJitter
	return rc
}
