package core

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Status represents the transport state of a source.
type Status string

const (
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Playback holds the transport state of a payload. Timestamp is excluded
// from content hashing so a re-poll of unchanged playback dedupes.
type Playback struct {
	IsPlaying bool          `json:"is_playing"`
	Progress  time.Duration `json:"progress"`
	Status    Status        `json:"status"`
	Timestamp time.Time     `json:"timestamp" hash:"ignore"`
}

// DeviceInfo describes the device reporting playback.
type DeviceInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	GroupMembers  []string `json:"group_members,omitempty"`
	IsCoordinator bool     `json:"is_coordinator"`
}

// NowPlaying is the normalized output of any source's poll or event cycle.
type NowPlaying struct {
	Provider Provider    `json:"provider"`
	Track    *Track      `json:"track"`
	Playback Playback    `json:"playback"`
	Device   *DeviceInfo `json:"device,omitempty"`
}

// HasTrack returns true if a track is loaded.
func (n *NowPlaying) HasTrack() bool {
	return n != nil && n.Track != nil
}

// Nothing returns true if the payload represents "nothing playing".
func (n *NowPlaying) Nothing() bool {
	return n == nil || (n.Track == nil && !n.Playback.IsPlaying)
}

// TrackID returns a stable identity for the loaded track, used to decide
// whether two sources are reporting the same piece of content. Falls back
// to URI, then title+artist, when the source has no native id.
func (n *NowPlaying) TrackID() string {
	if n == nil || n.Track == nil {
		return ""
	}
	if n.Track.ID != "" {
		return canonicalTrackID(n.Track.ID)
	}
	if n.Track.URI != "" {
		return canonicalTrackID(n.Track.URI)
	}
	if n.Track.Title == "" {
		return ""
	}
	return strings.ToLower(n.Track.Title + "|" + n.Track.Artist)
}

var spotifyTrackRe = regexp.MustCompile(`spotify[:/]track[:/]([0-9A-Za-z]{22})`)

// canonicalTrackID reduces service-prefixed ids to a cross-source form.
// A speaker streaming a cloud track reports it URL-encoded under a
// service scheme ("x-sonos-spotify:spotify%3atrack%3a<id>?sid=9") while
// the cloud source reports the bare base-62 id; both must compare equal.
func canonicalTrackID(s string) string {
	if dec, err := url.QueryUnescape(s); err == nil {
		s = dec
	}
	if m := spotifyTrackRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ProgressPercent returns playback progress as a percentage (0-100).
func (n *NowPlaying) ProgressPercent() float64 {
	if n == nil || n.Track == nil || n.Track.Duration == 0 {
		return 0
	}
	return float64(n.Playback.Progress) / float64(n.Track.Duration) * 100
}

// Normalize enforces the payload invariant: no track and not playing means
// the status is stopped, not paused. Sources call this before handing a
// payload to the coordinator. It also stamps the payload if the source
// did not.
func (n *NowPlaying) Normalize() *NowPlaying {
	if n == nil {
		return nil
	}
	if n.Track == nil && !n.Playback.IsPlaying {
		n.Playback.Status = StatusStopped
		n.Playback.Progress = 0
	}
	if n.Playback.Status == "" {
		if n.Playback.IsPlaying {
			n.Playback.Status = StatusPlaying
		} else {
			n.Playback.Status = StatusStopped
		}
	}
	if n.Playback.Timestamp.IsZero() {
		n.Playback.Timestamp = time.Now()
	}
	return n
}
