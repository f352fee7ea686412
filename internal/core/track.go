package core

import "time"

// Provider identifies the origin of a playback payload.
type Provider string

const (
	ProviderSonos   Provider = "sonos"
	ProviderSpotify Provider = "spotify"
)

// Track represents the currently loaded audio track.
type Track struct {
	ID         string        `json:"id"`
	URI        string        `json:"uri"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	Artists    []string      `json:"artists"`
	Album      string        `json:"album"`
	ArtworkURL string        `json:"artwork_url"`
	Duration   time.Duration `json:"duration"`
}
