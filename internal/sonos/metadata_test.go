package sonos

import (
	"testing"
	"time"
)

const sampleDIDL = `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">` +
	`<item id="-1" parentID="-1" restricted="true">` +
	`<res protocolInfo="sonos.com-spotify:*:audio/x-spotify:*" duration="0:03:27">x-sonos-spotify:spotify%3atrack%3aabc123?sid=9</res>` +
	`<upnp:albumArtURI>/getaa?s=1&amp;u=x-sonos-spotify</upnp:albumArtURI>` +
	`<dc:title>Holocene</dc:title>` +
	`<upnp:class>object.item.audioItem.musicTrack</upnp:class>` +
	`<dc:creator>Bon Iver</dc:creator>` +
	`<upnp:album>Bon Iver, Bon Iver</upnp:album>` +
	`</item></DIDL-Lite>`

func TestParseTrackMetadata(t *testing.T) {
	track := parseTrackMetadata(sampleDIDL, "x-sonos-spotify:spotify%3atrack%3aabc123?sid=9", "http://10.0.1.15:1400")
	if track == nil {
		t.Fatal("parseTrackMetadata() = nil, want track")
	}
	if track.Title != "Holocene" {
		t.Errorf("Title = %q, want Holocene", track.Title)
	}
	if track.Artist != "Bon Iver" {
		t.Errorf("Artist = %q, want Bon Iver", track.Artist)
	}
	if track.Album != "Bon Iver, Bon Iver" {
		t.Errorf("Album = %q", track.Album)
	}
	if track.ArtworkURL != "http://10.0.1.15:1400/getaa?s=1&u=x-sonos-spotify" {
		t.Errorf("ArtworkURL = %q, not absolutized", track.ArtworkURL)
	}
	if track.ID == "" {
		t.Error("ID is empty, want URI fallback")
	}
}

func TestParseTrackMetadataAbsent(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
	}{
		{"empty", ""},
		{"not implemented sentinel", "NOT_IMPLEMENTED"},
		{"malformed xml", "<DIDL-Lite><item><dc:title>unclosed"},
		{"no title", `<DIDL-Lite><item><dc:creator>Someone</dc:creator></item></DIDL-Lite>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTrackMetadata(tt.metadata, "uri", ""); got != nil {
				t.Errorf("parseTrackMetadata() = %+v, want nil", got)
			}
		})
	}
}

func TestParseTrackMetadataRegexFallback(t *testing.T) {
	// Namespace prefixes the strict parser does not know about.
	raw := `<meta><x:title>Song A</x:title><x:creator>Band</x:creator></meta>`
	track := parseTrackMetadata(raw, "uri-1", "")
	if track == nil {
		t.Fatal("fallback parse returned nil")
	}
	if track.Title != "Song A" || track.Artist != "Band" {
		t.Errorf("fallback parse = %q by %q", track.Title, track.Artist)
	}
}

func TestParseTrackDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"0:03:27", 3*time.Minute + 27*time.Second},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{"03:27", 3*time.Minute + 27*time.Second},
		{"0:03:27.331", 3*time.Minute + 27*time.Second + 331*time.Millisecond},
		{"02:05.5", 2*time.Minute + 5*time.Second + 500*time.Millisecond},
		{"", 0},
		{"NOT_IMPLEMENTED", 0},
		{"garbage", 0},
		{"1:2:3:4", 0},
		{"-1:00", 0},
	}
	for _, tt := range tests {
		if got := parseTrackDuration(tt.in); got != tt.want {
			t.Errorf("parseTrackDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSplitArtists(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"Solo Act", 1},
		{"A & B", 2},
		{"A, B, C", 3},
		{"A feat. B", 2},
		{"", 0},
	}
	for _, tt := range tests {
		if got := splitArtists(tt.in); len(got) != tt.want {
			t.Errorf("splitArtists(%q) = %v, want %d entries", tt.in, got, tt.want)
		}
	}
}

func TestExtractRincon(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"x-rincon-queue:RINCON_949F3EC2E15A01400#0", "RINCON_949F3EC2E15A01400"},
		{"x-rincon:RINCON_ABC01400", "RINCON_ABC01400"},
		{"spotify:track:xyz", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractRincon(tt.uri); got != tt.want {
			t.Errorf("extractRincon(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestMapTransportState(t *testing.T) {
	tests := []struct {
		state   string
		want    string
		playing bool
	}{
		{"PLAYING", "playing", true},
		{"TRANSITIONING", "playing", true},
		{"PAUSED_PLAYBACK", "paused", false},
		{"STOPPED", "stopped", false},
		{"NO_MEDIA_PRESENT", "stopped", false},
	}
	for _, tt := range tests {
		status, playing := mapTransportState(tt.state)
		if string(status) != tt.want || playing != tt.playing {
			t.Errorf("mapTransportState(%q) = %q/%v, want %q/%v",
				tt.state, status, playing, tt.want, tt.playing)
		}
	}
}
