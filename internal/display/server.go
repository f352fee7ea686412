// Package display serves the unified now-playing stream to display
// clients: a JSON snapshot, an SSE feed, a per-source health view and a
// caching artwork proxy for displays that cannot fetch HTTPS themselves.
package display

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/config"
	"github.com/tessro/marquee/internal/coordinator"
	"github.com/tessro/marquee/internal/core"
	"github.com/tessro/marquee/internal/obs"
)

// maxArtworkBytes caps a single proxied artwork download.
const maxArtworkBytes = 10 << 20

// Feed is the coordinator surface the server consumes.
type Feed interface {
	Now() coordinator.Output
	Subscribe() (<-chan coordinator.Output, func())
}

// HealthFunc returns the current per-source health snapshots.
type HealthFunc func() []core.SourceHealth

// Server is the display feed HTTP server.
type Server struct {
	cfg     config.DisplayConfig
	logger  *zap.Logger
	e       *echo.Echo
	feed    Feed
	health  HealthFunc
	artwork *cache.Cache
	fetch   *http.Client

	mu       sync.Mutex
	progress map[string]struct{} // SSE clients that asked for progress
}

// NewServer creates the feed server. health may be nil (serve/watch
// wiring injects it); metrics may be nil to disable /metrics.
func NewServer(cfg config.DisplayConfig, feed Feed, health HealthFunc, metrics *obs.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		e:        e,
		feed:     feed,
		health:   health,
		artwork:  cache.New(cfg.ArtworkTTL.Std(), cfg.ArtworkSweep.Std()),
		fetch:    &http.Client{Timeout: 15 * time.Second},
		progress: make(map[string]struct{}),
	}

	e.GET("/api/now", s.handleNow)
	e.GET("/api/health", s.handleHealth)
	e.GET("/api/artwork", s.handleArtwork)
	e.GET("/events", s.handleEvents)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}
	return s
}

// NeedsProgress reports whether any connected client asked for
// high-frequency progress updates. Monitors consult it to skip the
// relaxed paused cadence.
func (s *Server) NeedsProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.progress) > 0
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.e.Start(s.cfg.Listen)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.e.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("display feed listening", zap.String("addr", s.cfg.Listen))
		return nil
	}
}

func (s *Server) handleNow(c echo.Context) error {
	return c.JSON(http.StatusOK, s.feed.Now())
}

// healthResponse is the /api/health body.
type healthResponse struct {
	Active  core.Provider       `json:"active"`
	Sources []core.SourceHealth `json:"sources"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := healthResponse{Active: s.feed.Now().Provider}
	if s.health != nil {
		resp.Sources = s.health()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEvents(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	if c.QueryParam("progress") == "1" {
		s.mu.Lock()
		s.progress[clientID] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.progress, clientID)
			s.mu.Unlock()
		}()
	}

	frames, cancel := s.feed.Subscribe()
	defer cancel()

	s.logger.Debug("sse client connected",
		zap.String("client", clientID),
		zap.String("remote", c.Request().RemoteAddr))

	// Every client starts from the current state, not the next change.
	if err := writeFrame(c, s.feed.Now()); err != nil {
		return err
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case out, ok := <-frames:
			if !ok {
				return nil
			}
			if err := writeFrame(c, out); err != nil {
				return err
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(c.Response(), ":\n\n"); err != nil {
				return err
			}
			c.Response().Flush()
		}
	}
}

func writeFrame(c echo.Context, out coordinator.Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// cachedArtwork is one proxied image.
type cachedArtwork struct {
	contentType string
	body        []byte
}

func (s *Server) handleArtwork(c echo.Context) error {
	raw := c.QueryParam("u")
	if raw == "" {
		return c.String(http.StatusBadRequest, "missing u parameter")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return c.String(http.StatusBadRequest, "invalid artwork url")
	}

	if hit, ok := s.artwork.Get(raw); ok {
		art := hit.(*cachedArtwork)
		return c.Blob(http.StatusOK, art.contentType, art.body)
	}

	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, raw, nil)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid artwork url")
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		s.logger.Warn("artwork fetch failed", zap.String("url", raw), zap.Error(err))
		return c.String(http.StatusBadGateway, "artwork fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.String(http.StatusBadGateway,
			fmt.Sprintf("artwork upstream status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes))
	if err != nil {
		return c.String(http.StatusBadGateway, "artwork read failed")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.artwork.Set(raw, &cachedArtwork{contentType: contentType, body: body}, cache.DefaultExpiration)

	return c.Blob(http.StatusOK, contentType, body)
}
