package config

import "fmt"

// Validator validates runtime configurations.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks that every bound in cfg is within the limits the
// Orchestrator, Rate Limiter, and Sub-Agent/Fleet Coordinator require to
// operate. Returns nil if valid, or an error describing the first
// validation failure.
func (v *Validator) Validate(cfg *RuntimeConfig) error {
	if cfg == nil {
		return ErrConfigEmpty
	}

	if cfg.MaxConcurrentTools <= 0 {
		return ErrMaxConcurrentToolsInvalid
	}
	if cfg.MaxRetries < 0 {
		return ErrMaxRetriesInvalid
	}
	if cfg.DefaultTimeout <= 0 {
		return ErrDefaultTimeoutInvalid
	}
	if cfg.MaxSubagentDepth < 0 {
		return ErrMaxSubagentDepthInvalid
	}
	if cfg.MaxFleetSize < 0 {
		return ErrMaxFleetSizeInvalid
	}
	for tool, interval := range cfg.RateIntervals {
		if interval < 0 {
			return fmt.Errorf("tool=%s: %w", tool, ErrRateIntervalInvalid)
		}
	}

	return nil
}
