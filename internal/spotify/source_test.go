package spotify

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/tessro/marquee/internal/config"
	"github.com/tessro/marquee/internal/core"
	"github.com/tessro/marquee/internal/merr"
)

const currentlyPlayingURL = BaseURL + "/me/player/currently-playing"

const playingBody = `{
	"device": {"id": "d1", "name": "Kitchen", "type": "Speaker", "is_active": true},
	"timestamp": 1700000000000,
	"progress_ms": 41000,
	"is_playing": true,
	"currently_playing_type": "track",
	"item": {
		"id": "3n3Ppam7vgaVa1iaRUc9Lp",
		"name": "Mr. Brightside",
		"uri": "spotify:track:3n3Ppam7vgaVa1iaRUc9Lp",
		"duration_ms": 222075,
		"artists": [{"name": "The Killers"}],
		"album": {
			"name": "Hot Fuss",
			"images": [
				{"url": "https://i.scdn.co/image/small", "height": 64, "width": 64},
				{"url": "https://i.scdn.co/image/large", "height": 640, "width": 640},
				{"url": "https://i.scdn.co/image/medium", "height": 300, "width": 300}
			]
		}
	}
}`

func newTestClient(t *testing.T, token *Token) *Client {
	t.Helper()
	store, err := NewTokenStore(filepath.Join(t.TempDir(), "token.json"), "")
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	if token != nil {
		if err := store.Save(token); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	client, err := NewClient("client-id", "", store, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func validToken() *Token {
	return &Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newTestSource(t *testing.T, token *Token) *Source {
	t.Helper()
	cfg := config.SpotifyConfig{Priority: 1}
	return NewSource(cfg, newTestClient(t, token), nil)
}

func TestPollMapsPlayback(t *testing.T) {
	src := newTestSource(t, validToken())
	httpmock.RegisterResponder("GET", currentlyPlayingURL,
		httpmock.NewStringResponder(http.StatusOK, playingBody))

	np, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	if np.Provider != core.ProviderSpotify {
		t.Errorf("Provider = %q, want %q", np.Provider, core.ProviderSpotify)
	}
	if np.Track == nil {
		t.Fatal("Track is nil")
	}
	if np.Track.Title != "Mr. Brightside" {
		t.Errorf("Title = %q, want %q", np.Track.Title, "Mr. Brightside")
	}
	if np.Track.Artist != "The Killers" {
		t.Errorf("Artist = %q, want %q", np.Track.Artist, "The Killers")
	}
	if np.Track.Album != "Hot Fuss" {
		t.Errorf("Album = %q, want %q", np.Track.Album, "Hot Fuss")
	}
	if np.Track.ArtworkURL != "https://i.scdn.co/image/large" {
		t.Errorf("ArtworkURL = %q, want the largest image", np.Track.ArtworkURL)
	}
	if want := 222075 * time.Millisecond; np.Track.Duration != want {
		t.Errorf("Duration = %v, want %v", np.Track.Duration, want)
	}
	if want := 41 * time.Second; np.Playback.Progress != want {
		t.Errorf("Progress = %v, want %v", np.Playback.Progress, want)
	}
	if !np.Playback.IsPlaying || np.Playback.Status != core.StatusPlaying {
		t.Errorf("Playback = %+v, want playing", np.Playback)
	}
	if np.Device == nil || np.Device.Name != "Kitchen" {
		t.Errorf("Device = %+v, want Kitchen", np.Device)
	}
}

func TestPollNothingPlaying(t *testing.T) {
	src := newTestSource(t, validToken())
	httpmock.RegisterResponder("GET", currentlyPlayingURL,
		httpmock.NewStringResponder(http.StatusNoContent, ""))

	np, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if np.Track != nil || np.Playback.Status != core.StatusStopped {
		t.Errorf("payload = %+v, want stopped with nil track", np)
	}
}

func TestPollAdBreak(t *testing.T) {
	src := newTestSource(t, validToken())
	httpmock.RegisterResponder("GET", currentlyPlayingURL,
		httpmock.NewStringResponder(http.StatusOK,
			`{"is_playing": true, "currently_playing_type": "ad", "item": null}`))

	np, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if np.Track != nil || np.Playback.Status != core.StatusStopped {
		t.Errorf("payload = %+v, want stopped during ad break", np)
	}
}

func TestPollUnauthorized(t *testing.T) {
	src := newTestSource(t, validToken())
	httpmock.RegisterResponder("GET", currentlyPlayingURL,
		httpmock.NewStringResponder(http.StatusUnauthorized,
			`{"error": {"status": 401, "message": "The access token expired"}}`))

	_, err := src.Poll(context.Background())
	if !merr.IsAuth(err) {
		t.Errorf("Poll() error = %v, want auth kind", err)
	}
}

func TestPollServerError(t *testing.T) {
	src := newTestSource(t, validToken())
	httpmock.RegisterResponder("GET", currentlyPlayingURL,
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	_, err := src.Poll(context.Background())
	if !merr.IsNetwork(err) {
		t.Errorf("Poll() error = %v, want network kind", err)
	}
}

func TestExpiredTokenRefreshesBeforeRequest(t *testing.T) {
	expired := &Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}
	src := newTestSource(t, expired)

	httpmock.RegisterResponder("POST", TokenURL,
		httpmock.NewStringResponder(http.StatusOK,
			`{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600}`))
	httpmock.RegisterResponder("GET", currentlyPlayingURL,
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Bearer fresh" {
				t.Errorf("Authorization = %q, want the refreshed token", got)
			}
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	if _, err := src.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	// The rotated-out refresh token is preserved and persisted.
	tok := src.client.Token()
	if tok == nil || tok.RefreshToken != "refresh" || tok.AccessToken != "fresh" {
		t.Errorf("Token() = %+v, want fresh access with preserved refresh token", tok)
	}
}

func TestRefreshCredentialGrantRejected(t *testing.T) {
	src := newTestSource(t, validToken())
	httpmock.RegisterResponder("POST", TokenURL,
		httpmock.NewStringResponder(http.StatusBadRequest,
			`{"error": "invalid_grant", "error_description": "Refresh token revoked"}`))

	err := src.RefreshCredential(context.Background())
	if !merr.IsAuth(err) {
		t.Errorf("RefreshCredential() error = %v, want auth kind", err)
	}
}

func TestNoTokenAtAll(t *testing.T) {
	src := newTestSource(t, nil)
	_, err := src.Poll(context.Background())
	if !merr.IsAuth(err) {
		t.Errorf("Poll() error = %v, want auth kind", err)
	}
}

func TestSeedRefreshTokenBootstraps(t *testing.T) {
	store, err := NewTokenStore(filepath.Join(t.TempDir(), "token.json"), "")
	if err != nil {
		t.Fatalf("NewTokenStore() error = %v", err)
	}
	client, err := NewClient("client-id", "seed-refresh", store, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if !client.HasToken() {
		t.Fatal("HasToken() = false, want seeded credentials")
	}

	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder("POST", TokenURL,
		httpmock.NewStringResponder(http.StatusOK,
			`{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600}`))
	httpmock.RegisterResponder("GET", currentlyPlayingURL,
		httpmock.NewStringResponder(http.StatusNoContent, ""))

	if _, err := client.CurrentlyPlaying(context.Background()); err != nil {
		t.Fatalf("CurrentlyPlaying() error = %v", err)
	}

	// The refreshed token landed on disk.
	saved, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved == nil || saved.AccessToken != "fresh" || saved.RefreshToken != "seed-refresh" {
		t.Errorf("saved token = %+v, want persisted refresh result", saved)
	}
}
