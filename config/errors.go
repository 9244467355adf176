package config

import "errors"

// Sentinel errors for runtime configuration validation.
var (
	// ErrConfigEmpty is returned when the config data is empty (zero bytes).
	ErrConfigEmpty = errors.New("runtime configuration is empty")

	// ErrMaxConcurrentToolsInvalid is returned when max_concurrent_tools <= 0.
	ErrMaxConcurrentToolsInvalid = errors.New("max_concurrent_tools must be > 0")

	// ErrMaxRetriesInvalid is returned when max_retries < 0.
	ErrMaxRetriesInvalid = errors.New("max_retries must be >= 0")

	// ErrDefaultTimeoutInvalid is returned when default_timeout <= 0.
	ErrDefaultTimeoutInvalid = errors.New("default_timeout must be > 0")

	// ErrMaxSubagentDepthInvalid is returned when max_subagent_depth < 0.
	ErrMaxSubagentDepthInvalid = errors.New("max_subagent_depth must be >= 0")

	// ErrMaxFleetSizeInvalid is returned when max_fleet_size < 0.
	ErrMaxFleetSizeInvalid = errors.New("max_fleet_size must be >= 0")

	// ErrRateIntervalInvalid is returned when a rate_intervals entry is negative.
	ErrRateIntervalInvalid = errors.New("rate_intervals values must be >= 0")
)
