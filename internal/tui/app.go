// Package tui renders the unified now-playing stream in the terminal.
// It is a pure consumer: arbitration happens in the coordinator it
// subscribes to.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tessro/marquee/internal/coordinator"
	"github.com/tessro/marquee/internal/core"
)

// HealthFunc returns the current per-source health snapshots.
type HealthFunc func() []core.SourceHealth

// frameMsg delivers one coordinator output frame.
type frameMsg coordinator.Output

// tickMsg drives local progress interpolation between polls.
type tickMsg time.Time

// Model is the watch display model.
type Model struct {
	frames <-chan coordinator.Output
	health HealthFunc

	width  int
	height int

	out        coordinator.Output
	receivedAt time.Time
	haveFrame  bool

	spin     spinner.Model
	quitting bool
}

// NewModel creates the display model over a frame subscription.
func NewModel(frames <-chan coordinator.Output, health HealthFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorMauve)
	return Model{frames: frames, health: health, spin: sp}
}

// Run drives the model until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err == tea.ErrProgramKilled && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForFrame(), m.tick(), m.spin.Tick)
}

func (m Model) waitForFrame() tea.Cmd {
	return func() tea.Msg {
		out, ok := <-m.frames
		if !ok {
			return tea.Quit()
		}
		return frameMsg(out)
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case frameMsg:
		m.out = coordinator.Output(msg)
		m.receivedAt = time.Now()
		m.haveFrame = true
		return m, m.waitForFrame()

	case tickMsg:
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 {
		width = 80
	}
	inner := width - 8
	if inner < 24 {
		inner = 24
	}

	var body string
	switch {
	case !m.haveFrame:
		body = m.spin.View() + mutedStyle.Render(" waiting for playback...")
	case m.out.Payload == nil || m.out.Payload.Nothing():
		body = mutedStyle.Render("Nothing playing")
	default:
		body = m.renderPlayback(inner)
	}

	panel := panelStyle.Width(width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		"",
		body,
		"",
		m.renderHealth(),
	))

	help := mutedStyle.Render("  q quit")
	return lipgloss.JoinVertical(lipgloss.Left, panel, help)
}

func (m Model) renderHeader() string {
	switch m.out.Provider {
	case core.ProviderSonos:
		return badgeSonos.Render("SONOS")
	case core.ProviderSpotify:
		return badgeSpotify.Render("SPOTIFY")
	default:
		return badgeIdle.Render("IDLE")
	}
}

func (m Model) renderPlayback(width int) string {
	np := m.out.Payload
	track := np.Track

	lines := []string{
		statusIcon(np.Playback.IsPlaying) + " " + titleStyle.Render(track.Title),
		"  " + artistStyle.Render(track.Artist),
	}
	if track.Album != "" {
		lines = append(lines, "  "+albumStyle.Render(track.Album))
	}
	lines = append(lines, "")

	progress := m.currentProgress()
	barWidth := width - 14
	if barWidth < 10 {
		barWidth = 10
	}
	percent := 0.0
	if track.Duration > 0 {
		percent = float64(progress) / float64(track.Duration) * 100
	}
	lines = append(lines, fmt.Sprintf("%s %s %s",
		formatDuration(progress), progressBar(percent, barWidth), formatDuration(track.Duration)))

	if np.Device != nil {
		device := fmt.Sprintf("%s %s", deviceIcon(np.Device.Type), np.Device.Name)
		if len(np.Device.GroupMembers) > 1 {
			device += mutedStyle.Render(" +" + strings.Join(np.Device.GroupMembers[1:], ", "))
		}
		lines = append(lines, "", mutedStyle.Render(device))
	}

	lines = append(lines, "",
		mutedStyle.Render("updated "+humanize.Time(np.Playback.Timestamp)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// currentProgress interpolates progress between frames while playing.
func (m Model) currentProgress() time.Duration {
	np := m.out.Payload
	progress := np.Playback.Progress
	if np.Playback.IsPlaying {
		progress += time.Since(m.receivedAt)
	}
	if np.Track != nil && np.Track.Duration > 0 && progress > np.Track.Duration {
		progress = np.Track.Duration
	}
	return progress
}

func (m Model) renderHealth() string {
	if m.health == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, h := range m.health() {
		label := fmt.Sprintf("%s:%s", h.Provider, h.Mode)
		switch h.Mode {
		case core.ModePolling:
			label = playingStyle.Render(label)
		case core.ModeDegraded:
			label = degradedStyle.Render(label)
		case core.ModeOffline:
			label = offlineStyle.Render(label)
		default:
			label = mutedStyle.Render(label)
		}
		parts = append(parts, label)
	}
	return mutedStyle.Render("sources ") + strings.Join(parts, mutedStyle.Render(" · "))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
