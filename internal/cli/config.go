package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tessro/marquee/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and creating marquee configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(cfg)
	}

	encoder := toml.NewEncoder(os.Stdout)
	encoder.Indent = "  "
	return encoder.Encode(cfg)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	out := config.Default()
	var (
		clientID     string
		refreshToken string
		broker       string
		listen       = out.Display.Listen
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Spotify client ID").
				Description("Leave empty to run with the Sonos source only.").
				Value(&clientID),
			huh.NewInput().
				Title("Spotify refresh token").
				Description("Optional; can be set later with 'marquee auth set'.").
				EchoMode(huh.EchoModePassword).
				Value(&refreshToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Display feed listen address").
				Value(&listen),
			huh.NewInput().
				Title("MQTT broker URL").
				Description("Optional, e.g. tcp://homeassistant:1883. Empty disables MQTT.").
				Value(&broker),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	out.Spotify.ClientID = clientID
	out.Spotify.RefreshToken = refreshToken
	out.Display.Listen = listen
	out.MQTT.Broker = broker

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintln(f, "# Marquee configuration")
	_, _ = fmt.Fprintln(f, "")

	encoder := toml.NewEncoder(f)
	encoder.Indent = "  "
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created config file: %s\n", configPath)
	if refreshToken == "" && clientID != "" {
		fmt.Println("\nNext step: store a refresh token with 'marquee auth set <token>'")
	}
	return nil
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".marqueerc"
	}
	return filepath.Join(home, ".marqueerc")
}
