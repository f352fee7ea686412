package spotify

// PlaybackState is the currently-playing response, trimmed to the fields
// the source maps into a payload.
type PlaybackState struct {
	Device               Device `json:"device"`
	Timestamp            int64  `json:"timestamp"`
	ProgressMS           int    `json:"progress_ms"`
	IsPlaying            bool   `json:"is_playing"`
	Item                 *Track `json:"item"`
	CurrentlyPlayingType string `json:"currently_playing_type"` // track, episode, ad, unknown
}

// Device represents a Spotify playback device.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

// Track represents a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	DurationMS int      `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
}

// Artist represents a Spotify artist.
type Artist struct {
	Name string `json:"name"`
}

// Album represents a Spotify album.
type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

// Image represents an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// LargestImage returns the URL of the album's largest artwork, or empty.
func (a Album) LargestImage() string {
	best := ""
	bestArea := -1
	for _, img := range a.Images {
		area := img.Height * img.Width
		if area > bestArea {
			bestArea = area
			best = img.URL
		}
	}
	return best
}
