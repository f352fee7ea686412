package config

// Config is the root configuration structure.
type Config struct {
	Sonos       SonosConfig       `toml:"sonos"`
	Spotify     SpotifyConfig     `toml:"spotify"`
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Display     DisplayConfig     `toml:"display"`
	MQTT        MQTTConfig        `toml:"mqtt"`
	Log         LogConfig         `toml:"log"`
}

// SonosConfig holds the local-network source settings.
type SonosConfig struct {
	Disabled bool `toml:"disabled"`
	Priority int  `toml:"priority"`

	BaseInterval    Duration `toml:"base_interval"`
	ReducedInterval Duration `toml:"reduced_interval"`
	PausedInterval  Duration `toml:"paused_interval"`
	Timeout         Duration `toml:"timeout"`

	MaxFailures    int      `toml:"max_failures"`
	ClearFailures  int      `toml:"clear_failures"`
	RetryInitial   Duration `toml:"retry_initial"`
	RetryMax       Duration `toml:"retry_max"`
	RecoveryWindow Duration `toml:"recovery_window"`
	OfflineProbe   Duration `toml:"offline_probe"`

	StaleAfter Duration `toml:"stale_after"`
	Grace      Duration `toml:"grace"`

	DiscoveryTimeout Duration `toml:"discovery_timeout"`
	MaxHosts         int      `toml:"max_hosts"`
	LocateStrategy   string   `toml:"locate_strategy"` // topology or media

	EventLease    Duration `toml:"event_lease"`
	RenewFraction float64  `toml:"renew_fraction"`
	CallbackPort  int      `toml:"callback_port"`
}

// SpotifyConfig holds the cloud source settings.
type SpotifyConfig struct {
	Disabled bool `toml:"disabled"`
	Priority int  `toml:"priority"`

	ClientID     string `toml:"client_id"`
	RefreshToken string `toml:"refresh_token"`
	TokenFile    string `toml:"token_file"`

	BaseInterval    Duration `toml:"base_interval"`
	ReducedInterval Duration `toml:"reduced_interval"`
	PausedInterval  Duration `toml:"paused_interval"`
	Timeout         Duration `toml:"timeout"`

	MaxFailures    int      `toml:"max_failures"`
	RetryInitial   Duration `toml:"retry_initial"`
	RetryMax       Duration `toml:"retry_max"`
	RecoveryWindow Duration `toml:"recovery_window"`
	OfflineProbe   Duration `toml:"offline_probe"`

	StaleAfter Duration `toml:"stale_after"`
	Grace      Duration `toml:"grace"`

	AuthMaxRetries    int      `toml:"auth_max_retries"`
	AuthRetryInterval Duration `toml:"auth_retry_interval"`
}

// CoordinatorConfig holds the takeover arbitration settings.
type CoordinatorConfig struct {
	StaleTakeover Duration `toml:"stale_takeover"`
	Dwell         Duration `toml:"dwell"`
	Sweep         Duration `toml:"sweep"`
}

// DisplayConfig holds the display feed server settings.
type DisplayConfig struct {
	Disabled     bool     `toml:"disabled"`
	Listen       string   `toml:"listen"`
	ArtworkTTL   Duration `toml:"artwork_ttl"`
	ArtworkSweep Duration `toml:"artwork_sweep"`
}

// MQTTConfig holds the optional MQTT publisher settings.
type MQTTConfig struct {
	Broker   string `toml:"broker"`
	Topic    string `toml:"topic"`
	ClientID string `toml:"client_id"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}
