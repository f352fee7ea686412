// Package spotify implements the cloud playback source against the
// Spotify Web API using a refresh-token grant.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/merr"
)

// BaseURL is the Spotify Web API base URL.
const BaseURL = "https://api.spotify.com/v1"

// ErrNotAuthenticated is returned when no token is available at all.
var ErrNotAuthenticated = errors.New("not authenticated")

// Client is a thin Spotify Web API client. It performs exactly one
// request per call and classifies the outcome; retry and backoff policy
// live with the caller.
type Client struct {
	httpClient *http.Client
	clientID   string
	store      *TokenStore
	logger     *zap.Logger

	mu    sync.RWMutex
	token *Token
}

// NewClient creates a Spotify client. seedRefreshToken, when non-empty,
// bootstraps credentials for a store with no saved token.
func NewClient(clientID, seedRefreshToken string, store *TokenStore, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		clientID:   clientID,
		store:      store,
		logger:     logger,
	}

	token, err := store.Load()
	if err != nil {
		return nil, err
	}
	if token == nil && seedRefreshToken != "" {
		// Expired on purpose: the first request refreshes it.
		token = &Token{RefreshToken: seedRefreshToken}
	}
	c.token = token
	return c, nil
}

// HTTPClient exposes the underlying client, for tests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// HasToken returns true if there's any token (even if expired).
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil
}

// SetToken replaces the current token and persists it.
func (c *Client) SetToken(token *Token) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return c.store.Save(token)
}

// Token returns a copy of the current token, or nil.
func (c *Client) Token() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

// Refresh forces a refresh-token grant and persists the result.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	if c.token == nil || c.token.RefreshToken == "" {
		return merr.Auth("spotify.refresh", ErrNotAuthenticated)
	}
	token, err := refreshAccessToken(ctx, c.httpClient, c.clientID, c.token.RefreshToken)
	if err != nil {
		return err
	}
	c.token = token
	if err := c.store.Save(token); err != nil {
		c.logger.Warn("failed to persist refreshed token", zap.Error(err))
	}
	return nil
}

// getToken returns a usable access token, refreshing an expired one.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return "", merr.Auth("spotify.token", ErrNotAuthenticated)
	}
	if c.token.IsExpired() {
		if err := c.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token.AccessToken, nil
}

// CurrentlyPlaying fetches the user's currently-playing state. A 204
// (nothing playing anywhere) returns (nil, nil).
func (c *Client) CurrentlyPlaying(ctx context.Context) (*PlaybackState, error) {
	var state PlaybackState
	found, err := c.get(ctx, "/me/player/currently-playing", &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &state, nil
}

// get performs one GET against the API. The bool result reports whether
// a body was present (false on 204).
func (c *Client) get(ctx context.Context, path string, result interface{}) (bool, error) {
	op := "spotify.get " + path

	token, err := c.getToken(ctx)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, BaseURL+path, nil)
	if err != nil {
		return false, merr.Network(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, merr.Network(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, merr.Network(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return false, merr.Auth(op, apiError(resp.StatusCode, body))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, merr.Network(op, apiError(resp.StatusCode, body))
	case resp.StatusCode >= 400:
		return false, merr.Protocol(op, apiError(resp.StatusCode, body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return false, merr.Protocol(op, fmt.Errorf("parsing response: %w", err))
	}
	return true, nil
}

// APIError is a Spotify API error response.
type APIError struct {
	ErrorInfo struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API error %d: %s", e.ErrorInfo.Status, e.ErrorInfo.Message)
}

// apiError decodes the API error body, falling back to the raw status.
func apiError(status int, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorInfo.Message != "" {
		return &apiErr
	}
	return fmt.Errorf("API error: status %d", status)
}
