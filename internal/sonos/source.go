package sonos

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/config"
	"github.com/tessro/marquee/internal/core"
	"github.com/tessro/marquee/internal/transport"
)

// Source is the local-network playback source. It discovers zone players
// over SSDP, resolves the group coordinator, polls it over SOAP, and
// subscribes to its transport events as a poll hint.
type Source struct {
	cfg     config.SonosConfig
	logger  *zap.Logger
	client  *Client
	locator *Locator
	sub     *Subscriber

	mu       sync.Mutex
	coord    *GroupCoordinator
	listener *NotifyListener
	eventCtx context.Context
	kick     func()
}

// NewSource creates the local-network source over a shared adapter.
func NewSource(cfg config.SonosConfig, adapter *transport.Adapter, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := NewClient(adapter, cfg.Timeout.Std())
	s := &Source{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		locator: NewLocator(client, cfg.LocateStrategy, logger),
		sub:     NewSubscriber(adapter, cfg.EventLease.Std(), cfg.RenewFraction, cfg.Timeout.Std(), logger),
	}
	s.sub.OnRenewFailed = s.onRenewFailed
	return s
}

// Provider implements core.Source.
func (s *Source) Provider() core.Provider { return core.ProviderSonos }

// Priority implements core.Source.
func (s *Source) Priority() int { return s.cfg.Priority }

// Intervals implements core.Source.
func (s *Source) Intervals() core.Intervals {
	return core.Intervals{
		Base:    s.cfg.BaseInterval.Std(),
		Reduced: s.cfg.ReducedInterval.Std(),
		Paused:  s.cfg.PausedInterval.Std(),
	}
}

// Failures implements core.Source.
func (s *Source) Failures() core.FailurePolicy {
	return core.FailurePolicy{
		MaxFailures:        s.cfg.MaxFailures,
		ClearAfterFailures: s.cfg.ClearFailures,
		RetryInitial:       s.cfg.RetryInitial.Std(),
		RetryMax:           s.cfg.RetryMax.Std(),
		RecoveryWindow:     s.cfg.RecoveryWindow.Std(),
		OfflineProbe:       s.cfg.OfflineProbe.Std(),
	}
}

// Poll implements core.Source. A reachable network with no playable
// coordinator is a normal "nothing playing" outcome, not a failure.
func (s *Source) Poll(ctx context.Context) (*core.NowPlaying, error) {
	coord, err := s.coordinator(ctx)
	if err != nil {
		return nil, err
	}
	if coord == nil {
		return s.nothing(), nil
	}

	pos, err := s.client.GetPositionInfo(ctx, coord.Base)
	if err != nil {
		s.dropCoordinator()
		return nil, err
	}
	ti, err := s.client.GetTransportInfo(ctx, coord.Base)
	if err != nil {
		s.dropCoordinator()
		return nil, err
	}

	s.ensureSubscribed(coord)

	track := parseTrackMetadata(pos.TrackMetaData, pos.TrackURI, coord.Base)
	if track != nil {
		track.Duration = parseTrackDuration(pos.TrackDuration)
	}

	status, playing := mapTransportState(ti.CurrentTransportState)

	payload := &core.NowPlaying{
		Provider: core.ProviderSonos,
		Track:    track,
		Playback: core.Playback{
			IsPlaying: playing,
			Progress:  parseTrackDuration(pos.RelTime),
			Status:    status,
			Timestamp: time.Now(),
		},
		Device: &core.DeviceInfo{
			Name:          coord.Name,
			Type:          "speaker",
			GroupMembers:  coord.Members,
			IsCoordinator: true,
		},
	}
	return payload.Normalize(), nil
}

// StartEvents implements core.Eventer. kick requests an immediate
// out-of-band poll; the NOTIFY body is never parsed.
func (s *Source) StartEvents(ctx context.Context, kick func()) error {
	listener := NewNotifyListener(s.cfg.CallbackPort, kick, s.logger)
	if err := listener.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.eventCtx = ctx
	s.kick = kick
	s.mu.Unlock()
	return nil
}

// StopEvents implements core.Eventer. Teardown is best-effort.
func (s *Source) StopEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.sub.Unsubscribe(ctx)

	s.mu.Lock()
	s.listener = nil
	s.eventCtx = nil
	s.mu.Unlock()
}

// coordinator returns the cached coordinator, rediscovering when none is
// cached.
func (s *Source) coordinator(ctx context.Context) (*GroupCoordinator, error) {
	s.mu.Lock()
	coord := s.coord
	s.mu.Unlock()
	if coord != nil {
		return coord, nil
	}

	hosts, err := transport.DiscoverHosts(ctx, transport.Search{
		Target:   SonosSearchTarget,
		Timeout:  s.cfg.DiscoveryTimeout.Std(),
		MaxHosts: s.cfg.MaxHosts,
	})
	if err != nil {
		return nil, err
	}

	coord, err = s.locator.Locate(ctx, hosts)
	if err != nil {
		return nil, err
	}
	if coord == nil {
		return nil, nil
	}

	s.logger.Info("group coordinator resolved",
		zap.String("name", coord.Name),
		zap.String("base", coord.Base),
		zap.Strings("members", coord.Members))

	s.mu.Lock()
	s.coord = coord
	s.mu.Unlock()
	return coord, nil
}

// dropCoordinator clears the cache so the next poll rediscovers. The
// subscription is reset with it; it points at a host we no longer trust.
func (s *Source) dropCoordinator() {
	s.mu.Lock()
	s.coord = nil
	s.mu.Unlock()
	s.sub.Reset()
}

// ensureSubscribed keeps the event lease pointed at the current
// coordinator. Subscribe is idempotent, so calling this on every
// successful poll costs nothing while subscribed.
func (s *Source) ensureSubscribed(coord *GroupCoordinator) {
	s.mu.Lock()
	listener, ctx := s.listener, s.eventCtx
	s.mu.Unlock()
	if listener == nil || ctx == nil {
		return
	}

	callback, err := listener.CallbackURL(hostFromBase(coord.Base))
	if err != nil {
		s.logger.Debug("no route for event callback", zap.Error(err))
		return
	}
	if err := s.sub.Subscribe(ctx, coord.Base, callback); err != nil {
		s.logger.Warn("event subscribe failed, polling continues", zap.Error(err))
	}
}

// onRenewFailed drops the dead lease and kicks a poll so the next cycle
// resubscribes from scratch.
func (s *Source) onRenewFailed(host string) {
	s.sub.Reset()
	s.mu.Lock()
	kick := s.kick
	s.mu.Unlock()
	if kick != nil {
		kick()
	}
}

func (s *Source) nothing() *core.NowPlaying {
	payload := &core.NowPlaying{
		Provider: core.ProviderSonos,
		Playback: core.Playback{Status: core.StatusStopped, Timestamp: time.Now()},
	}
	return payload.Normalize()
}

// mapTransportState maps an AVTransport state to the normalized status.
// TRANSITIONING counts as playing: the gap between tracks is not a pause.
func mapTransportState(state string) (core.Status, bool) {
	switch state {
	case "PLAYING", "TRANSITIONING":
		return core.StatusPlaying, true
	case "PAUSED_PLAYBACK":
		return core.StatusPaused, false
	default:
		return core.StatusStopped, false
	}
}

func hostFromBase(base string) string {
	host := strings.TrimPrefix(base, "http://")
	host = strings.TrimPrefix(host, "https://")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

var (
	_ core.Source  = (*Source)(nil)
	_ core.Eventer = (*Source)(nil)
)
