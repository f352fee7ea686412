package tui

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Palette, Catppuccin Mocha.
var (
	colorText    = lipgloss.Color(catppuccin.Mocha.Text().Hex)
	colorSubtext = lipgloss.Color(catppuccin.Mocha.Subtext0().Hex)
	colorMuted   = lipgloss.Color(catppuccin.Mocha.Overlay0().Hex)
	colorBorder  = lipgloss.Color(catppuccin.Mocha.Surface1().Hex)
	colorGreen   = lipgloss.Color(catppuccin.Mocha.Green().Hex)
	colorYellow  = lipgloss.Color(catppuccin.Mocha.Yellow().Hex)
	colorRed     = lipgloss.Color(catppuccin.Mocha.Red().Hex)
	colorMauve   = lipgloss.Color(catppuccin.Mocha.Mauve().Hex)
	colorBlue    = lipgloss.Color(catppuccin.Mocha.Blue().Hex)
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	artistStyle   = lipgloss.NewStyle().Foreground(colorSubtext)
	albumStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	playingStyle  = lipgloss.NewStyle().Foreground(colorGreen)
	pausedStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	degradedStyle = lipgloss.NewStyle().Foreground(colorYellow)
	offlineStyle  = lipgloss.NewStyle().Foreground(colorRed)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2)

	badgeSonos = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(catppuccin.Mocha.Base().Hex)).
			Background(colorBlue).
			Padding(0, 1)

	badgeSpotify = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(catppuccin.Mocha.Base().Hex)).
			Background(colorGreen).
			Padding(0, 1)

	badgeIdle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)
)

// progressBar renders a gradient bar from mauve to green.
func progressBar(percent float64, width int) string {
	if width < 1 {
		return ""
	}
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	start, _ := colorful.Hex(string(catppuccin.Mocha.Mauve().Hex))
	end, _ := colorful.Hex(string(catppuccin.Mocha.Green().Hex))

	var bar string
	for i := 0; i < filled; i++ {
		t := 0.0
		if width > 1 {
			t = float64(i) / float64(width-1)
		}
		c := start.BlendLuv(end, t)
		bar += lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("━")
	}
	empty := lipgloss.NewStyle().Foreground(colorBorder)
	for i := filled; i < width; i++ {
		bar += empty.Render("─")
	}
	return bar
}

// statusIcon returns the icon for a playback status.
func statusIcon(playing bool) string {
	if playing {
		return playingStyle.Render("▶")
	}
	return pausedStyle.Render("⏸")
}

// deviceIcon returns an icon for a device type.
func deviceIcon(deviceType string) string {
	switch deviceType {
	case "speaker", "Speaker":
		return "🔊"
	case "computer", "Computer":
		return "💻"
	case "smartphone", "Smartphone":
		return "📱"
	case "tv", "TV":
		return "📺"
	default:
		return "🎧"
	}
}
