package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Sonos.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sonos: %w", err))
	}
	if err := c.Spotify.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("spotify: %w", err))
	}
	if err := c.Coordinator.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("coordinator: %w", err))
	}
	if err := c.Display.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("display: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks SonosConfig for errors.
func (c *SonosConfig) Validate() error {
	if c.Priority < 0 {
		return errors.New("priority must be non-negative")
	}
	switch c.LocateStrategy {
	case "", "topology", "media":
		// valid
	default:
		return fmt.Errorf("invalid locate_strategy: %s (must be topology or media)", c.LocateStrategy)
	}
	if c.RenewFraction <= 0 || c.RenewFraction >= 1 {
		return errors.New("renew_fraction must be between 0 and 1 exclusive")
	}
	if c.MaxHosts < 0 {
		return errors.New("max_hosts must be non-negative")
	}
	return validateWindows(c.MaxFailures, c.RetryInitial, c.RetryMax, c.RecoveryWindow)
}

// Validate checks SpotifyConfig for errors.
func (c *SpotifyConfig) Validate() error {
	if c.Priority < 0 {
		return errors.New("priority must be non-negative")
	}
	if c.AuthMaxRetries < 0 {
		return errors.New("auth_max_retries must be non-negative")
	}
	return validateWindows(c.MaxFailures, c.RetryInitial, c.RetryMax, c.RecoveryWindow)
}

// Validate checks CoordinatorConfig for errors.
func (c *CoordinatorConfig) Validate() error {
	if c.StaleTakeover <= 0 {
		return errors.New("stale_takeover must be positive")
	}
	if c.Dwell < 0 {
		return errors.New("dwell must be non-negative")
	}
	if c.Sweep <= 0 {
		return errors.New("sweep must be positive")
	}
	return nil
}

// Validate checks DisplayConfig for errors.
func (c *DisplayConfig) Validate() error {
	if !c.Disabled && c.Listen == "" {
		return errors.New("listen address is required")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	return nil
}

func validateWindows(maxFailures int, retryInitial, retryMax, recoveryWindow Duration) error {
	if maxFailures <= 0 {
		return errors.New("max_failures must be positive")
	}
	if retryInitial <= 0 || retryMax < retryInitial {
		return errors.New("retry intervals must satisfy 0 < retry_initial <= retry_max")
	}
	if recoveryWindow <= 0 {
		return errors.New("recovery_window must be positive")
	}
	return nil
}
