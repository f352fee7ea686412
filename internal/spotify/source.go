package spotify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/config"
	"github.com/tessro/marquee/internal/core"
)

// Source is the cloud playback source. It polls the currently-playing
// endpoint; there is no event channel, cadence alone drives freshness.
type Source struct {
	cfg    config.SpotifyConfig
	client *Client
	logger *zap.Logger
}

// NewSource creates the cloud source.
func NewSource(cfg config.SpotifyConfig, client *Client, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, client: client, logger: logger}
}

// Provider implements core.Source.
func (s *Source) Provider() core.Provider { return core.ProviderSpotify }

// Priority implements core.Source.
func (s *Source) Priority() int { return s.cfg.Priority }

// Intervals implements core.Source.
func (s *Source) Intervals() core.Intervals {
	return core.Intervals{
		Base:    s.cfg.BaseInterval.Std(),
		Reduced: s.cfg.ReducedInterval.Std(),
		Paused:  s.cfg.PausedInterval.Std(),
	}
}

// Failures implements core.Source.
func (s *Source) Failures() core.FailurePolicy {
	return core.FailurePolicy{
		MaxFailures:        s.cfg.MaxFailures,
		ClearAfterFailures: s.cfg.MaxFailures,
		RetryInitial:       s.cfg.RetryInitial.Std(),
		RetryMax:           s.cfg.RetryMax.Std(),
		RecoveryWindow:     s.cfg.RecoveryWindow.Std(),
		OfflineProbe:       s.cfg.OfflineProbe.Std(),
		AuthMaxRetries:     s.cfg.AuthMaxRetries,
		AuthRetryInterval:  s.cfg.AuthRetryInterval.Std(),
	}
}

// Poll implements core.Source. Nothing playing anywhere (204) and
// non-track content (ads, unknown) are normal stopped payloads.
func (s *Source) Poll(ctx context.Context) (*core.NowPlaying, error) {
	state, err := s.client.CurrentlyPlaying(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || state.Item == nil || !isTrack(state.CurrentlyPlayingType) {
		return s.nothing(), nil
	}
	return s.payload(state), nil
}

// RefreshCredential implements core.CredentialRefresher.
func (s *Source) RefreshCredential(ctx context.Context) error {
	return s.client.Refresh(ctx)
}

func isTrack(playingType string) bool {
	// Episodes carry usable metadata; ads and unknown content do not.
	return playingType == "" || playingType == "track" || playingType == "episode"
}

func (s *Source) nothing() *core.NowPlaying {
	return &core.NowPlaying{
		Provider: core.ProviderSpotify,
		Playback: core.Playback{Status: core.StatusStopped},
	}
}

func (s *Source) payload(state *PlaybackState) *core.NowPlaying {
	item := state.Item

	artists := make([]string, 0, len(item.Artists))
	for _, a := range item.Artists {
		artists = append(artists, a.Name)
	}

	status := core.StatusPaused
	if state.IsPlaying {
		status = core.StatusPlaying
	}

	np := &core.NowPlaying{
		Provider: core.ProviderSpotify,
		Track: &core.Track{
			ID:         item.ID,
			URI:        item.URI,
			Title:      item.Name,
			Artist:     strings.Join(artists, ", "),
			Artists:    artists,
			Album:      item.Album.Name,
			ArtworkURL: item.Album.LargestImage(),
			Duration:   time.Duration(item.DurationMS) * time.Millisecond,
		},
		Playback: core.Playback{
			IsPlaying: state.IsPlaying,
			Progress:  time.Duration(state.ProgressMS) * time.Millisecond,
			Status:    status,
		},
	}
	if state.Device.Name != "" {
		np.Device = &core.DeviceInfo{
			Name: state.Device.Name,
			Type: state.Device.Type,
		}
	}
	return np
}
