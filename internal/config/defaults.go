package config

import "time"

// Default returns a Config with every interval, threshold and window set
// to its default. All of them can be overridden in the config file.
func Default() *Config {
	return &Config{
		Sonos: SonosConfig{
			Priority:         0,
			BaseInterval:     Duration(10 * time.Second),
			ReducedInterval:  Duration(30 * time.Second),
			PausedInterval:   Duration(30 * time.Second),
			Timeout:          Duration(5 * time.Second),
			MaxFailures:      3,
			ClearFailures:    3,
			RetryInitial:     Duration(5 * time.Second),
			RetryMax:         Duration(120 * time.Second),
			RecoveryWindow:   Duration(10 * time.Minute),
			OfflineProbe:     Duration(5 * time.Minute),
			StaleAfter:       Duration(60 * time.Second),
			Grace:            Duration(90 * time.Second),
			DiscoveryTimeout: Duration(3 * time.Second),
			MaxHosts:         32,
			LocateStrategy:   "topology",
			EventLease:       Duration(600 * time.Second),
			RenewFraction:    0.9,
			CallbackPort:     8806,
		},
		Spotify: SpotifyConfig{
			Priority:          1,
			TokenFile:         "", // resolved under the config dir when empty
			BaseInterval:      Duration(5 * time.Second),
			ReducedInterval:   Duration(20 * time.Second),
			PausedInterval:    Duration(30 * time.Second),
			Timeout:           Duration(10 * time.Second),
			MaxFailures:       5,
			RetryInitial:      Duration(2 * time.Second),
			RetryMax:          Duration(120 * time.Second),
			RecoveryWindow:    Duration(10 * time.Minute),
			OfflineProbe:      Duration(5 * time.Minute),
			StaleAfter:        Duration(30 * time.Second),
			Grace:             Duration(60 * time.Second),
			AuthMaxRetries:    2,
			AuthRetryInterval: Duration(2 * time.Second),
		},
		Coordinator: CoordinatorConfig{
			StaleTakeover: Duration(30 * time.Second),
			Dwell:         Duration(5 * time.Second),
			Sweep:         Duration(time.Second),
		},
		Display: DisplayConfig{
			Listen:       ":8807",
			ArtworkTTL:   Duration(time.Hour),
			ArtworkSweep: Duration(10 * time.Minute),
		},
		MQTT: MQTTConfig{
			Topic:    "marquee/nowplaying",
			ClientID: "marquee",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// ApplyDefaults fills in zero values with the defaults above.
func (c *Config) ApplyDefaults() {
	c.applyDefaults(nil)
}

// applyDefaults is ApplyDefaults with file metadata. defined reports
// whether a key was set explicitly, so an explicit zero survives for the
// fields where zero is meaningful and differs from the default (spotify
// priority, sonos max_hosts).
func (c *Config) applyDefaults(defined func(key ...string) bool) {
	if defined == nil {
		defined = func(...string) bool { return false }
	}
	d := Default()

	s := &c.Sonos
	ds := d.Sonos
	fillDuration(&s.BaseInterval, ds.BaseInterval)
	fillDuration(&s.ReducedInterval, ds.ReducedInterval)
	fillDuration(&s.PausedInterval, ds.PausedInterval)
	fillDuration(&s.Timeout, ds.Timeout)
	fillInt(&s.MaxFailures, ds.MaxFailures)
	fillInt(&s.ClearFailures, ds.ClearFailures)
	fillDuration(&s.RetryInitial, ds.RetryInitial)
	fillDuration(&s.RetryMax, ds.RetryMax)
	fillDuration(&s.RecoveryWindow, ds.RecoveryWindow)
	fillDuration(&s.OfflineProbe, ds.OfflineProbe)
	fillDuration(&s.StaleAfter, ds.StaleAfter)
	fillDuration(&s.Grace, ds.Grace)
	fillDuration(&s.DiscoveryTimeout, ds.DiscoveryTimeout)
	if s.MaxHosts == 0 && !defined("sonos", "max_hosts") {
		s.MaxHosts = ds.MaxHosts // explicit 0 means no discovery cap
	}
	if s.LocateStrategy == "" {
		s.LocateStrategy = ds.LocateStrategy
	}
	fillDuration(&s.EventLease, ds.EventLease)
	if s.RenewFraction == 0 {
		s.RenewFraction = ds.RenewFraction
	}
	fillInt(&s.CallbackPort, ds.CallbackPort)

	p := &c.Spotify
	dp := d.Spotify
	if p.Priority == 0 && !defined("spotify", "priority") {
		p.Priority = dp.Priority // explicit 0 makes the cloud source highest
	}
	fillDuration(&p.BaseInterval, dp.BaseInterval)
	fillDuration(&p.ReducedInterval, dp.ReducedInterval)
	fillDuration(&p.PausedInterval, dp.PausedInterval)
	fillDuration(&p.Timeout, dp.Timeout)
	fillInt(&p.MaxFailures, dp.MaxFailures)
	fillDuration(&p.RetryInitial, dp.RetryInitial)
	fillDuration(&p.RetryMax, dp.RetryMax)
	fillDuration(&p.RecoveryWindow, dp.RecoveryWindow)
	fillDuration(&p.OfflineProbe, dp.OfflineProbe)
	fillDuration(&p.StaleAfter, dp.StaleAfter)
	fillDuration(&p.Grace, dp.Grace)
	fillInt(&p.AuthMaxRetries, dp.AuthMaxRetries)
	fillDuration(&p.AuthRetryInterval, dp.AuthRetryInterval)

	fillDuration(&c.Coordinator.StaleTakeover, d.Coordinator.StaleTakeover)
	fillDuration(&c.Coordinator.Dwell, d.Coordinator.Dwell)
	fillDuration(&c.Coordinator.Sweep, d.Coordinator.Sweep)

	if c.Display.Listen == "" {
		c.Display.Listen = d.Display.Listen
	}
	fillDuration(&c.Display.ArtworkTTL, d.Display.ArtworkTTL)
	fillDuration(&c.Display.ArtworkSweep, d.Display.ArtworkSweep)

	if c.MQTT.Topic == "" {
		c.MQTT.Topic = d.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	fillInt(&c.Log.MaxSizeMB, d.Log.MaxSizeMB)
	fillInt(&c.Log.MaxBackups, d.Log.MaxBackups)
}

func fillDuration(v *Duration, def Duration) {
	if *v == 0 {
		*v = def
	}
}

func fillInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
