package model

import "time"

// RetryConfig defines backoff for batch flushes to a sink.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	Jitter            bool          `json:"jitter"`
}

// DefaultRetryConfig is used when no retry settings are configured.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      2 * time.Second,
	MaxDelay:          60 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}
