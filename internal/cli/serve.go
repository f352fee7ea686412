package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/config"
	"github.com/tessro/marquee/internal/coordinator"
	"github.com/tessro/marquee/internal/core"
	"github.com/tessro/marquee/internal/display"
	"github.com/tessro/marquee/internal/monitor"
	"github.com/tessro/marquee/internal/mqttpub"
	"github.com/tessro/marquee/internal/obs"
	"github.com/tessro/marquee/internal/sonos"
	"github.com/tessro/marquee/internal/spotify"
	"github.com/tessro/marquee/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the now-playing feed server",
	Long: `Polls the configured sources, arbitrates between them, and serves
the unified stream over HTTP/SSE (and optionally MQTT) until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := buildLogger(cfg.Log, false)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := obs.New(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to build metrics: %w", err)
	}

	coord := coordinator.New(coordinator.Options{
		StaleTakeover: cfg.Coordinator.StaleTakeover.Std(),
		Dwell:         cfg.Coordinator.Dwell.Std(),
		Sweep:         cfg.Coordinator.Sweep.Std(),
	}, logger, metrics)

	var monitors []*monitor.Monitor
	healthFn := func() []core.SourceHealth {
		health := make([]core.SourceHealth, 0, len(monitors))
		for _, m := range monitors {
			health = append(health, m.Health())
		}
		return health
	}

	var srv *display.Server
	needsProgress := func() bool { return false }
	if !cfg.Display.Disabled {
		srv = display.NewServer(cfg.Display, coord, healthFn, metrics, logger)
		needsProgress = srv.NeedsProgress
	}

	sources, err := buildSources(cfg, logger)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources enabled")
	}

	for _, src := range sources {
		coord.Register(src.Provider(), src.Priority(), freshnessFor(cfg, src.Provider()))
		monitors = append(monitors, monitor.New(src, coord, logger,
			monitor.WithMetrics(metrics),
			monitor.WithNeedsProgress(needsProgress)))
	}

	if srv != nil {
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("display feed failed to start: %w", err)
		}
	}

	var wg sync.WaitGroup

	if cfg.MQTT.Broker != "" {
		pub := mqttpub.New(cfg.MQTT, logger)
		if err := pub.Connect(); err != nil {
			// The broker coming up later is not fatal; paho retries.
			logger.Warn("mqtt connect failed, retrying in background", zap.Error(err))
		}
		frames, cancelSub := coord.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancelSub()
			_ = pub.Run(ctx, frames)
		}()
	}

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

	logger.Info("marquee serving", zap.Int("sources", len(sources)))
	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()
	return nil
}

// buildSources constructs every enabled source.
func buildSources(cfg *config.Config, logger *zap.Logger) ([]core.Source, error) {
	var sources []core.Source

	if !cfg.Sonos.Disabled {
		adapter := transport.NewAdapter()
		sources = append(sources, sonos.NewSource(cfg.Sonos, adapter, logger))
	}

	if !cfg.Spotify.Disabled && cfg.Spotify.ClientID != "" {
		client, err := buildSpotifyClient(cfg.Spotify, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, spotify.NewSource(cfg.Spotify, client, logger))
	}

	return sources, nil
}

func buildSpotifyClient(sc config.SpotifyConfig, logger *zap.Logger) (*spotify.Client, error) {
	dir := ""
	if sc.TokenFile == "" {
		d, err := config.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve token location: %w", err)
		}
		dir = d
	}
	store, err := spotify.NewTokenStore(sc.TokenFile, dir)
	if err != nil {
		return nil, err
	}
	client, err := spotify.NewClient(sc.ClientID, sc.RefreshToken, store, sc.Timeout.Std(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build spotify client: %w", err)
	}
	return client, nil
}

func freshnessFor(cfg *config.Config, provider core.Provider) core.Freshness {
	switch provider {
	case core.ProviderSonos:
		return core.Freshness{StaleAfter: cfg.Sonos.StaleAfter.Std(), Grace: cfg.Sonos.Grace.Std()}
	case core.ProviderSpotify:
		return core.Freshness{StaleAfter: cfg.Spotify.StaleAfter.Std(), Grace: cfg.Spotify.Grace.Std()}
	default:
		return core.Freshness{}
	}
}
