package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Sonos.Priority != 0 {
		t.Errorf("Sonos.Priority = %d, want 0", cfg.Sonos.Priority)
	}
	if cfg.Spotify.Priority != 1 {
		t.Errorf("Spotify.Priority = %d, want 1", cfg.Spotify.Priority)
	}
	if cfg.Coordinator.StaleTakeover.Std() != 30*time.Second {
		t.Errorf("StaleTakeover = %v, want 30s", cfg.Coordinator.StaleTakeover.Std())
	}
	if cfg.Coordinator.Dwell.Std() != 5*time.Second {
		t.Errorf("Dwell = %v, want 5s", cfg.Coordinator.Dwell.Std())
	}
	if cfg.Sonos.LocateStrategy != "topology" {
		t.Errorf("LocateStrategy = %q, want %q", cfg.Sonos.LocateStrategy, "topology")
	}
	if cfg.Sonos.RenewFraction != 0.9 {
		t.Errorf("RenewFraction = %v, want 0.9", cfg.Sonos.RenewFraction)
	}
}

func TestDefaultsKeepExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Sonos.BaseInterval = Duration(2 * time.Second)
	cfg.Spotify.MaxFailures = 9
	cfg.ApplyDefaults()

	if cfg.Sonos.BaseInterval.Std() != 2*time.Second {
		t.Errorf("Sonos.BaseInterval = %v, want 2s", cfg.Sonos.BaseInterval.Std())
	}
	if cfg.Spotify.MaxFailures != 9 {
		t.Errorf("Spotify.MaxFailures = %d, want 9", cfg.Spotify.MaxFailures)
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[sonos]
base_interval = "15s"
locate_strategy = "media"

[spotify]
client_id = "abc123"
stale_after = "45s"

[coordinator]
dwell = "10s"

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}

	if cfg.Sonos.BaseInterval.Std() != 15*time.Second {
		t.Errorf("BaseInterval = %v, want 15s", cfg.Sonos.BaseInterval.Std())
	}
	if cfg.Sonos.LocateStrategy != "media" {
		t.Errorf("LocateStrategy = %q, want media", cfg.Sonos.LocateStrategy)
	}
	if cfg.Spotify.StaleAfter.Std() != 45*time.Second {
		t.Errorf("StaleAfter = %v, want 45s", cfg.Spotify.StaleAfter.Std())
	}
	if cfg.Coordinator.Dwell.Std() != 10*time.Second {
		t.Errorf("Dwell = %v, want 10s", cfg.Coordinator.Dwell.Std())
	}
	// Defaults still fill the gaps
	if cfg.Sonos.StaleAfter.Std() != 60*time.Second {
		t.Errorf("Sonos.StaleAfter = %v, want default 60s", cfg.Sonos.StaleAfter.Std())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestExplicitZeroSurvivesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[sonos]
max_hosts = 0

[spotify]
priority = 0
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}

	// An explicit zero is a choice, not an omission: priority 0 makes the
	// cloud source highest, max_hosts 0 lifts the discovery cap.
	if cfg.Spotify.Priority != 0 {
		t.Errorf("Spotify.Priority = %d, want explicit 0 preserved", cfg.Spotify.Priority)
	}
	if cfg.Sonos.MaxHosts != 0 {
		t.Errorf("Sonos.MaxHosts = %d, want explicit 0 preserved", cfg.Sonos.MaxHosts)
	}

	// Absent keys still pick up the defaults.
	cfg2 := &Config{}
	cfg2.ApplyDefaults()
	if cfg2.Spotify.Priority != 1 {
		t.Errorf("Spotify.Priority = %d, want default 1", cfg2.Spotify.Priority)
	}
	if cfg2.Sonos.MaxHosts != 32 {
		t.Errorf("Sonos.MaxHosts = %d, want default 32", cfg2.Sonos.MaxHosts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARQUEE_SPOTIFY_CLIENT_ID", "env-client")
	t.Setenv("MARQUEE_LOG_LEVEL", "warn")

	cfg := &Config{}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	if cfg.Spotify.ClientID != "env-client" {
		t.Errorf("ClientID = %q, want env-client", cfg.Spotify.ClientID)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.Spotify.ClientID = "abc"

	cfg.Sonos.LocateStrategy = "psychic"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted invalid locate_strategy")
	}

	cfg.Sonos.LocateStrategy = "topology"
	cfg.Coordinator.StaleTakeover = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted zero stale_takeover")
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("Std() = %v, want 90s", d.Std())
	}
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Error("UnmarshalText() accepted garbage")
	}
	out, _ := Duration(2 * time.Minute).MarshalText()
	if string(out) != "2m0s" {
		t.Errorf("MarshalText() = %q, want 2m0s", out)
	}
}
