package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessro/marquee/internal/merr"
)

// TokenURL is the Spotify token endpoint.
const TokenURL = "https://accounts.spotify.com/api/token"

// DefaultTokenFileName is the default name for the token file.
const DefaultTokenFileName = "spotify_token.json"

// Token represents Spotify OAuth tokens.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired returns true if the token has expired or will expire within
// the next 60 seconds.
func (t *Token) IsExpired() bool {
	return time.Now().Add(60 * time.Second).After(t.ExpiresAt)
}

// tokenResponse is the raw response from Spotify's token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// refreshAccessToken uses a refresh token to get a new access token.
// Grant rejections are auth errors; transport failures are network errors.
func refreshAccessToken(ctx context.Context, httpClient *http.Client, clientID, refreshToken string) (*Token, error) {
	const op = "spotify.refresh"

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, merr.Network(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, merr.Network(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, merr.Network(op, err)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, merr.Protocol(op, fmt.Errorf("parsing token response: %w", err))
	}

	if tokenResp.Error != "" {
		return nil, merr.Auth(op, fmt.Errorf("token error: %s - %s", tokenResp.Error, tokenResp.ErrorDesc))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, merr.Auth(op, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	token := &Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		Scope:        tokenResp.Scope,
		ExpiresIn:    tokenResp.ExpiresIn,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	// Preserve the refresh token when the grant does not rotate it.
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// TokenStore persists tokens to disk.
type TokenStore struct {
	path string
}

// NewTokenStore creates a token store at path. An empty path places the
// file under dir (the application config directory).
func NewTokenStore(path, dir string) (*TokenStore, error) {
	if path == "" {
		if dir == "" {
			return nil, errors.New("no token file location")
		}
		path = filepath.Join(dir, DefaultTokenFileName)
	}
	return &TokenStore{path: path}, nil
}

// Save persists a token with owner-only permissions.
func (s *TokenStore) Save(token *Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Load reads a token from disk. A missing file is (nil, nil).
func (s *TokenStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &token, nil
}

// Path returns the path to the token file.
func (s *TokenStore) Path() string {
	return s.path
}
