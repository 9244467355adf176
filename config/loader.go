package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads and parses runtime configuration files, accepting either
// JSON (the format the external interfaces section's descriptor files use)
// or YAML, selected by file extension.
type Loader struct{}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFromFile loads and parses a runtime configuration from a JSON or YAML
// file, selecting the format by its extension (.yaml/.yml for YAML,
// anything else for JSON). Returns the validated RuntimeConfig or an error.
func (l *Loader) LoadFromFile(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg *RuntimeConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = l.LoadFromYAML(data)
	default:
		cfg, err = l.LoadFromBytes(data)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromBytes parses a runtime configuration from raw JSON bytes.
// Empty data (len==0) returns ErrConfigEmpty.
func (l *Loader) LoadFromBytes(data []byte) (*RuntimeConfig, error) {
	if len(data) == 0 {
		return nil, ErrConfigEmpty
	}

	cfg := DefaultRuntimeConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	return l.validate(&cfg)
}

// LoadFromYAML parses a runtime configuration from raw YAML bytes.
// Empty data (len==0) returns ErrConfigEmpty.
func (l *Loader) LoadFromYAML(data []byte) (*RuntimeConfig, error) {
	if len(data) == 0 {
		return nil, ErrConfigEmpty
	}

	cfg := DefaultRuntimeConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	return l.validate(&cfg)
}

func (l *Loader) validate(cfg *RuntimeConfig) (*RuntimeConfig, error) {
	validator := NewValidator()
	if err := validator.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
