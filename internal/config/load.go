package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// LoadYAML decodes a YAML file into target after expanding environment
// variables, then validates target if it implements Validator. Fields the
// file does not mention keep the values target already had.
func LoadYAML[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// Load returns the defaults overlaid with the file at filename. An empty
// filename, or one that does not exist when optional is set, gives the
// validated defaults.
func Load(filename string, optional bool) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, cfg.Validate()
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) && optional {
		return cfg, cfg.Validate()
	}
	if err := LoadYAML(filename, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
