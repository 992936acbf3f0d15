package config

import (
	"fmt"
	"time"
)

// Validate checks the configuration for structural correctness. It is
// run at startup, before any event is processed; a non-empty result is
// fatal for the run.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	for _, value := range []string{c.Intercept.ShutdownTimeout, c.Intercept.ReadTimeout} {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("intercept: invalid duration %q", value))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("intercept: duration %q must not be negative", value))
		}
	}

	removed := make(map[string]struct{}, len(c.Transform.ArgumentsToRemove))
	for _, flag := range c.Transform.ArgumentsToRemove {
		removed[flag] = struct{}{}
	}
	for _, flag := range c.Transform.ArgumentsToAdd {
		if _, ok := removed[flag]; ok {
			errs = append(errs, fmt.Errorf("transform: %q appears in both arguments_to_add and arguments_to_remove", flag))
		}
	}

	return errs
}
