package core

import (
	"testing"
	"time"
)

func TestNormalizeStoppedWhenEmpty(t *testing.T) {
	n := &NowPlaying{
		Provider: ProviderSonos,
		Playback: Playback{IsPlaying: false, Status: StatusPaused, Progress: 12 * time.Second},
	}
	n.Normalize()

	if n.Playback.Status != StatusStopped {
		t.Errorf("Status = %q, want %q", n.Playback.Status, StatusStopped)
	}
	if n.Playback.Progress != 0 {
		t.Errorf("Progress = %v, want 0", n.Playback.Progress)
	}
	if n.Playback.Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}
}

func TestNormalizeKeepsPause(t *testing.T) {
	n := &NowPlaying{
		Provider: ProviderSpotify,
		Track:    &Track{ID: "abc", Title: "Song"},
		Playback: Playback{IsPlaying: false, Status: StatusPaused},
	}
	n.Normalize()

	if n.Playback.Status != StatusPaused {
		t.Errorf("Status = %q, want %q", n.Playback.Status, StatusPaused)
	}
}

func TestTrackID(t *testing.T) {
	tests := []struct {
		name string
		np   *NowPlaying
		want string
	}{
		{"nil payload", nil, ""},
		{"no track", &NowPlaying{}, ""},
		{"id wins", &NowPlaying{Track: &Track{ID: "id1", URI: "uri1", Title: "T"}}, "id1"},
		{"uri fallback", &NowPlaying{Track: &Track{URI: "uri1", Title: "T"}}, "uri1"},
		{"title fallback", &NowPlaying{Track: &Track{Title: "Song", Artist: "Band"}}, "song|band"},
		{"untitled", &NowPlaying{Track: &Track{Artist: "Band"}}, ""},
		{"sonos didl id",
			&NowPlaying{Track: &Track{ID: "00032020spotify%3atrack%3a4uLU6hMCjMI75M1A2tKUQC"}},
			"4uLU6hMCjMI75M1A2tKUQC"},
		{"sonos transport uri",
			&NowPlaying{Track: &Track{URI: "x-sonos-spotify:spotify%3atrack%3a4uLU6hMCjMI75M1A2tKUQC?sid=9&flags=8224&sn=1"}},
			"4uLU6hMCjMI75M1A2tKUQC"},
		{"spotify native id",
			&NowPlaying{Track: &Track{ID: "4uLU6hMCjMI75M1A2tKUQC"}},
			"4uLU6hMCjMI75M1A2tKUQC"},
		{"open.spotify url",
			&NowPlaying{Track: &Track{URI: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"}},
			"4uLU6hMCjMI75M1A2tKUQC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.np.TrackID(); got != tt.want {
				t.Errorf("TrackID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNothing(t *testing.T) {
	if n := (&NowPlaying{Track: &Track{ID: "x"}}); n.Nothing() {
		t.Error("payload with track reported Nothing")
	}
	if n := (&NowPlaying{}); !n.Nothing() {
		t.Error("empty payload did not report Nothing")
	}
}

func TestProgressPercent(t *testing.T) {
	n := &NowPlaying{
		Track:    &Track{Duration: 200 * time.Second},
		Playback: Playback{Progress: 50 * time.Second},
	}
	if got := n.ProgressPercent(); got != 25 {
		t.Errorf("ProgressPercent() = %v, want 25", got)
	}
	if got := (&NowPlaying{}).ProgressPercent(); got != 0 {
		t.Errorf("ProgressPercent() on empty = %v, want 0", got)
	}
}
