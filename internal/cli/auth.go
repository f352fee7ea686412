package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tessro/marquee/internal/config"
	"github.com/tessro/marquee/internal/spotify"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Spotify credentials",
	Long: `Marquee authenticates to Spotify with a refresh token obtained out
of band (any OAuth helper with the user-read-playback-state and
user-read-currently-playing scopes works).`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <refresh-token>",
	Short: "Store a Spotify refresh token",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthSet,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status",
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func openTokenStore() (*spotify.TokenStore, error) {
	dir := ""
	if cfg.Spotify.TokenFile == "" {
		d, err := config.Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return spotify.NewTokenStore(cfg.Spotify.TokenFile, dir)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	store, err := openTokenStore()
	if err != nil {
		return err
	}

	// Stored expired on purpose: the first poll refreshes it.
	token := &spotify.Token{RefreshToken: args[0]}
	if err := store.Save(token); err != nil {
		return err
	}

	fmt.Printf("Refresh token saved to %s\n", store.Path())
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	store, err := openTokenStore()
	if err != nil {
		return err
	}
	token, err := store.Load()
	if err != nil {
		return err
	}

	if JSONOutput() {
		info := map[string]any{
			"path":          store.Path(),
			"authenticated": token != nil,
		}
		if token != nil {
			info["expired"] = token.IsExpired()
			if !token.ExpiresAt.IsZero() {
				info["expires_at"] = token.ExpiresAt.Format(time.RFC3339)
			}
		}
		return json.NewEncoder(os.Stdout).Encode(info)
	}

	if token == nil {
		fmt.Println("No credentials stored. Run 'marquee auth set <refresh-token>'.")
		return nil
	}
	fmt.Printf("Token file: %s\n", store.Path())
	switch {
	case token.AccessToken == "":
		fmt.Println("Refresh token stored; access token will be fetched on first poll.")
	case token.IsExpired():
		fmt.Printf("Access token expired %s; will refresh on next poll.\n",
			humanize.Time(token.ExpiresAt))
	default:
		fmt.Printf("Access token valid, expires %s.\n", humanize.Time(token.ExpiresAt))
	}
	return nil
}
