// Package config loads and validates the runtime's static configuration:
// the knobs named in the external interfaces section (require_approval,
// max_retries, default_timeout, max_subagent_depth, max_fleet_size,
// max_concurrent_tools, enable_rate_limiting, rate_intervals).
//
// Grounded on the teacher's config package: the same load-from-file/bytes
// shape, the same validate-after-parse pipeline, and the same sentinel-error
// style — repointed from the teacher's role-based static workflow schema to
// this runtime's execution-policy schema.
package config

import (
	"time"

	"github.com/smith-runtime/smith/contracts"
)

// RuntimeConfig is the on-disk shape of the runtime's configuration file.
type RuntimeConfig struct {
	RequireApproval    bool               `json:"require_approval" yaml:"require_approval"`
	MaxRetries         int                `json:"max_retries" yaml:"max_retries"`
	DefaultTimeout     float64            `json:"default_timeout" yaml:"default_timeout"`
	MaxSubagentDepth   int                `json:"max_subagent_depth" yaml:"max_subagent_depth"`
	MaxFleetSize       int                `json:"max_fleet_size" yaml:"max_fleet_size"`
	MaxConcurrentTools int                `json:"max_concurrent_tools" yaml:"max_concurrent_tools"`
	EnableRateLimiting bool               `json:"enable_rate_limiting" yaml:"enable_rate_limiting"`
	RateIntervals      map[string]float64 `json:"rate_intervals,omitempty" yaml:"rate_intervals,omitempty"`
}

// DefaultRuntimeConfig returns the runtime's out-of-the-box settings: serial
// tool dispatch, no rate limiting, no approval gate, one retry, a 30s
// default timeout, and depth/fleet bounds matching the original's defaults
// (max_subagent_depth=3, max_fleet_size drawn from fleet_coordinator.py's
// config.max_fleet_size default of 5).
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		RequireApproval:    false,
		MaxRetries:         1,
		DefaultTimeout:     30,
		MaxSubagentDepth:   3,
		MaxFleetSize:       5,
		MaxConcurrentTools: 1,
		EnableRateLimiting: false,
	}
}

// DefaultTimeoutDuration returns DefaultTimeout as a time.Duration.
func (c *RuntimeConfig) DefaultTimeoutDuration() time.Duration {
	return time.Duration(c.DefaultTimeout * float64(time.Second))
}

// RateIntervalDurations converts RateIntervals (seconds) to the duration map
// the Tool Registry / Rate Limiter consume.
func (c *RuntimeConfig) RateIntervalDurations() map[string]time.Duration {
	if len(c.RateIntervals) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(c.RateIntervals))
	for tool, seconds := range c.RateIntervals {
		out[tool] = time.Duration(seconds * float64(time.Second))
	}
	return out
}

// ToRunPolicy converts the loaded configuration into the contracts.RunPolicy
// a Run carries, mirroring api.PolicyDTO.ToRunPolicy's field mapping.
func (c *RuntimeConfig) ToRunPolicy() contracts.RunPolicy {
	policy := contracts.RunPolicy{
		MaxConcurrentTools: c.MaxConcurrentTools,
		MaxRetries:         c.MaxRetries,
		DefaultTimeout:     c.DefaultTimeoutDuration(),
		MaxSubagentDepth:   c.MaxSubagentDepth,
		MaxFleetSize:       c.MaxFleetSize,
		EnableRateLimiting: c.EnableRateLimiting,
		RequireApproval:    c.RequireApproval,
	}
	if durations := c.RateIntervalDurations(); durations != nil {
		policy.RateIntervals = make(map[contracts.ToolName]time.Duration, len(durations))
		for tool, d := range durations {
			policy.RateIntervals[contracts.ToolName(tool)] = d
		}
	}
	return policy
}
