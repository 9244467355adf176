package config

import (
	"errors"
	"testing"
)

func validConfig() RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	return cfg
}

func TestValidator_NilConfig(t *testing.T) {
	v := NewValidator()
	err := v.Validate(nil)
	if !errors.Is(err, ErrConfigEmpty) {
		t.Fatalf("expected ErrConfigEmpty, got %v", err)
	}
}

func TestValidator_ValidDefaultConfig(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	if err := v.Validate(&cfg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidator_MaxConcurrentToolsZero(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.MaxConcurrentTools = 0
	err := v.Validate(&cfg)
	if !errors.Is(err, ErrMaxConcurrentToolsInvalid) {
		t.Fatalf("expected ErrMaxConcurrentToolsInvalid, got %v", err)
	}
}

func TestValidator_MaxConcurrentToolsNegative(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.MaxConcurrentTools = -1
	err := v.Validate(&cfg)
	if !errors.Is(err, ErrMaxConcurrentToolsInvalid) {
		t.Fatalf("expected ErrMaxConcurrentToolsInvalid, got %v", err)
	}
}

func TestValidator_MaxRetriesNegative(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.MaxRetries = -1
	err := v.Validate(&cfg)
	if !errors.Is(err, ErrMaxRetriesInvalid) {
		t.Fatalf("expected ErrMaxRetriesInvalid, got %v", err)
	}
}

func TestValidator_MaxRetriesZeroIsValid(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.MaxRetries = 0
	if err := v.Validate(&cfg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidator_DefaultTimeoutZero(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.DefaultTimeout = 0
	err := v.Validate(&cfg)
	if !errors.Is(err, ErrDefaultTimeoutInvalid) {
		t.Fatalf("expected ErrDefaultTimeoutInvalid, got %v", err)
	}
}

func TestValidator_MaxSubagentDepthNegative(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.MaxSubagentDepth = -1
	err := v.Validate(&cfg)
	if !errors.Is(err, ErrMaxSubagentDepthInvalid) {
		t.Fatalf("expected ErrMaxSubagentDepthInvalid, got %v", err)
	}
}

func TestValidator_MaxSubagentDepthZeroIsValid(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.MaxSubagentDepth = 0
	if err := v.Validate(&cfg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidator_MaxFleetSizeNegative(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.MaxFleetSize = -1
	err := v.Validate(&cfg)
	if !errors.Is(err, ErrMaxFleetSizeInvalid) {
		t.Fatalf("expected ErrMaxFleetSizeInvalid, got %v", err)
	}
}

func TestValidator_RateIntervalNegative(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.RateIntervals = map[string]float64{"search": -0.5}
	err := v.Validate(&cfg)
	if !errors.Is(err, ErrRateIntervalInvalid) {
		t.Fatalf("expected ErrRateIntervalInvalid, got %v", err)
	}
}

func TestValidator_RateIntervalZeroIsValid(t *testing.T) {
	v := NewValidator()
	cfg := validConfig()
	cfg.RateIntervals = map[string]float64{"search": 0}
	if err := v.Validate(&cfg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
