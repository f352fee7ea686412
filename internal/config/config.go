package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.marqueerc, $XDG_CONFIG_HOME/marquee/config.toml,
// ~/.config/marquee/config.toml
func Load() (*Config, error) {
	cfg := &Config{}
	var md toml.MetaData

	path := findConfigFile()
	if path != "" {
		var err error
		if md, err = toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults(md.IsDefined)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults(md.IsDefined)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Dir returns the directory marquee keeps its own files in (token file,
// default log file), creating it if needed.
func Dir() (string, error) {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		xdg = filepath.Join(home, ".config")
	}
	dir := filepath.Join(xdg, "marquee")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".marqueerc"),
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "marquee", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Spotify
	if v := os.Getenv("MARQUEE_SPOTIFY_CLIENT_ID"); v != "" {
		cfg.Spotify.ClientID = v
	}
	if v := os.Getenv("MARQUEE_SPOTIFY_REFRESH_TOKEN"); v != "" {
		cfg.Spotify.RefreshToken = v
	}

	// Sonos
	if v := os.Getenv("MARQUEE_SONOS_DISCOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sonos.DiscoveryTimeout = Duration(d)
		}
	}
	if v := os.Getenv("MARQUEE_SONOS_LOCATE_STRATEGY"); v != "" {
		cfg.Sonos.LocateStrategy = v
	}

	// Display
	if v := os.Getenv("MARQUEE_DISPLAY_LISTEN"); v != "" {
		cfg.Display.Listen = v
	}

	// MQTT
	if v := os.Getenv("MARQUEE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("MARQUEE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// Log
	if v := os.Getenv("MARQUEE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MARQUEE_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}
