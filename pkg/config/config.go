// Package config defines the buildlens.yaml configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of a buildlens.yaml file.
type Config struct {
	Version     int         `yaml:"version"`
	Intercept   Intercept   `yaml:"intercept"`
	Recognition Recognition `yaml:"recognition"`
	Transform   Transform   `yaml:"transform"`
}

// Intercept tunes the capture-time transport.
type Intercept struct {
	// ShutdownTimeout bounds how long the collector drains open
	// reporter connections after the build finishes.
	ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
	// ReadTimeout bounds how long the collector waits on a stalled
	// connection mid-frame. Empty disables the bound.
	ReadTimeout string `yaml:"read_timeout,omitempty"`
}

// Recognition configures the compiler classifier.
type Recognition struct {
	CompilersToRecognize          []string `yaml:"compilers_to_recognize,omitempty"`
	CompilersToExclude            []string `yaml:"compilers_to_exclude,omitempty"`
	CompilersToExcludeByArguments []string `yaml:"compilers_to_exclude_by_arguments,omitempty"`
}

// Transform configures the flag rewrite applied to recognized compile
// passes. Both lists empty means no rewrite.
type Transform struct {
	ArgumentsToAdd    []string `yaml:"arguments_to_add,omitempty"`
	ArgumentsToRemove []string `yaml:"arguments_to_remove,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version: 1,
		Intercept: Intercept{
			ShutdownTimeout: "5s",
			ReadTimeout:     "30s",
		},
	}
}

// Load reads a buildlens.yaml. A missing file yields the defaults; any
// other failure is fatal to the run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ShutdownTimeout returns the parsed drain deadline.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	return parseTimeout(c.Intercept.ShutdownTimeout, 5*time.Second)
}

// ReadTimeout returns the parsed per-frame connection deadline.
func (c *Config) ReadTimeout() (time.Duration, error) {
	return parseTimeout(c.Intercept.ReadTimeout, 30*time.Second)
}

func parseTimeout(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}
