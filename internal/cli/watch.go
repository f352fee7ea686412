package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/tessro/marquee/internal/coordinator"
	"github.com/tessro/marquee/internal/core"
	"github.com/tessro/marquee/internal/monitor"
	"github.com/tessro/marquee/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the now-playing stream in the terminal",
	Long: `Runs the sources and coordinator in-process and renders the active
payload in a terminal display. Logs go to the configured file only.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// The TUI owns the terminal; never log to stderr here.
	logger := buildLogger(cfg.Log, true)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := coordinator.New(coordinator.Options{
		StaleTakeover: cfg.Coordinator.StaleTakeover.Std(),
		Dwell:         cfg.Coordinator.Dwell.Std(),
		Sweep:         cfg.Coordinator.Sweep.Std(),
	}, logger, nil)

	sources, err := buildSources(cfg, logger)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources enabled")
	}

	var monitors []*monitor.Monitor
	for _, src := range sources {
		coord.Register(src.Provider(), src.Priority(), freshnessFor(cfg, src.Provider()))
		// The terminal display always wants smooth progress.
		monitors = append(monitors, monitor.New(src, coord, logger,
			monitor.WithNeedsProgress(func() bool { return true })))
	}

	frames, cancelSub := coord.Subscribe()
	defer cancelSub()

	healthFn := func() []core.SourceHealth {
		health := make([]core.SourceHealth, 0, len(monitors))
		for _, m := range monitors {
			health = append(health, m.Health())
		}
		return health
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = coord.Run(ctx)
	}()
	for _, m := range monitors {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Run(ctx)
		}()
	}

	err = tui.Run(ctx, tui.NewModel(frames, healthFn))
	cancel()
	wg.Wait()
	return err
}
