package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/tessro/marquee/internal/coordinator"
)

var statusCopy bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current unified now-playing status",
	Long: `Polls every enabled source once, applies the priority rules, and
prints the winning payload.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusCopy, "copy", false, "copy \"Artist – Title\" to the clipboard")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop()
	if Verbose() {
		logger = buildLogger(cfg.Log, false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sources, err := buildSources(cfg, logger)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources enabled")
	}

	coord := coordinator.New(coordinator.Options{
		StaleTakeover: cfg.Coordinator.StaleTakeover.Std(),
		Dwell:         0, // one-shot, nothing to debounce
	}, logger, nil)

	for _, src := range sources {
		coord.Register(src.Provider(), src.Priority(), freshnessFor(cfg, src.Provider()))
	}
	for _, src := range sources {
		np, err := src.Poll(ctx)
		if err != nil {
			if Verbose() {
				fmt.Fprintf(os.Stderr, "%s error: %v\n", src.Provider(), err)
			}
			continue
		}
		coord.Update(np.Normalize())
	}

	out := coord.Now()

	if statusCopy && out.Payload.HasTrack() {
		text := out.Payload.Track.Artist + " – " + out.Payload.Track.Title
		if err := clipboard.WriteAll(text); err != nil {
			fmt.Fprintf(os.Stderr, "clipboard: %v\n", err)
		}
	}

	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	printStatus(out)
	return nil
}

func printStatus(out coordinator.Output) {
	np := out.Payload
	if np == nil || np.Nothing() {
		fmt.Println("Nothing playing")
		return
	}

	width := 80
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	icon := "⏸"
	if np.Playback.IsPlaying {
		icon = "▶"
	}

	fmt.Printf("%s %s\n", icon, truncate(np.Track.Title, width-2))
	if np.Track.Artist != "" {
		fmt.Printf("  %s\n", truncate(np.Track.Artist, width-2))
	}
	if np.Track.Album != "" {
		fmt.Printf("  %s\n", truncate(np.Track.Album, width-2))
	}

	line := string(out.Provider)
	if np.Device != nil && np.Device.Name != "" {
		line += " / " + np.Device.Name
	}
	if np.Track.Duration > 0 {
		line += fmt.Sprintf("  %s / %s",
			formatClock(np.Playback.Progress), formatClock(np.Track.Duration))
	}
	fmt.Printf("  %s\n", truncate(line, width-2))
}

func truncate(s string, max int) string {
	if max <= 1 || len([]rune(s)) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
