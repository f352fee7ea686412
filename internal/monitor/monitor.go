// Package monitor implements the per-source polling and health state
// machine: poll cadence selection, consecutive-failure accounting, the
// degraded-retry backoff loop, offline transitions and the auth-refresh
// sub-path. Failures are fully absorbed here; the coordinator only ever
// sees payloads or their invalidation.
package monitor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/core"
	"github.com/tessro/marquee/internal/merr"
	"github.com/tessro/marquee/internal/obs"
)

// Sink consumes a monitor's output. The coordinator implements it.
type Sink interface {
	// Update records a fresh payload for the payload's provider.
	Update(p *core.NowPlaying)
	// Invalidate clears the provider's last payload from eligibility.
	Invalidate(provider core.Provider)
	// SetOffline marks the provider (in)eligible regardless of payload.
	SetOffline(provider core.Provider, offline bool)
	// ActiveAbove reports whether a strictly-higher-priority source is
	// currently active and fresh. Gates the reduced poll cadence.
	ActiveAbove(priority int) bool
}

// Monitor drives one source. Exactly one poll attempt is in flight at any
// time: ticks and event kicks arriving mid-poll coalesce into at most one
// follow-up, never a queue.
type Monitor struct {
	src    core.Source
	sink   Sink
	logger *zap.Logger

	intervals core.Intervals
	policy    core.FailurePolicy

	// needsProgress reports whether any consumer currently wants
	// high-frequency progress updates. Nil means no.
	needsProgress func() bool

	metrics *obs.Metrics
	kick    chan struct{}
	rng     *rand.Rand
	now     func() time.Time

	mu           sync.Mutex
	health       core.SourceHealth
	lastPayload  *core.NowPlaying
	attempt      int  // degraded-retry backoff counter
	cleared      bool // payload already invalidated
	authFailures int
	authRetry    bool // next wait uses the short auth retry interval
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNeedsProgress injects the display boundary's "any consumer needs
// high-frequency updates" signal.
func WithNeedsProgress(fn func() bool) Option {
	return func(m *Monitor) { m.needsProgress = fn }
}

// WithMetrics wires poll and mode metrics.
func WithMetrics(metrics *obs.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor for src feeding sink.
func New(src core.Source, sink Sink, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		src:       src,
		sink:      sink,
		logger:    logger.With(zap.String("provider", string(src.Provider()))),
		intervals: src.Intervals(),
		policy:    src.Failures(),
		kick:      make(chan struct{}, 1),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		health: core.SourceHealth{
			Provider: src.Provider(),
			Priority: src.Priority(),
			Mode:     core.ModeIdle,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Kick requests an immediate out-of-band poll. Kicks arriving while a
// poll is in flight coalesce.
func (m *Monitor) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Health returns a snapshot of the source's health state.
func (m *Monitor) Health() core.SourceHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health
}

// Run polls until ctx is cancelled. Cancelling the context is how a
// source is disabled: all timers die with it and the caller deregisters
// the provider from the sink.
func (m *Monitor) Run(ctx context.Context) error {
	if ev, ok := m.src.(core.Eventer); ok {
		if err := ev.StartEvents(ctx, m.Kick); err != nil {
			m.logger.Warn("event channel unavailable, polling only", zap.Error(err))
		} else {
			defer ev.StopEvents()
		}
	}

	m.setMode(core.ModePolling)
	m.logger.Info("monitor started",
		zap.Duration("base_interval", m.intervals.Base),
		zap.Int("priority", m.src.Priority()))

	timer := time.NewTimer(0) // first poll immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.setMode(core.ModeIdle)
			return ctx.Err()
		case <-timer.C:
		case <-m.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		m.pollOnce(ctx)

		select {
		case <-ctx.Done():
			m.setMode(core.ModeIdle)
			return ctx.Err()
		default:
		}
		timer.Reset(m.nextInterval())
	}
}

// pollOnce runs a single attempt and applies the outcome to the health
// state machine.
func (m *Monitor) pollOnce(ctx context.Context) {
	payload, err := m.src.Poll(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.metrics.RecordPoll(m.src.Provider(), false)
		m.onFailure(ctx, err)
		return
	}
	m.metrics.RecordPoll(m.src.Provider(), true)
	m.onSuccess(payload)
}

// onSuccess unconditionally returns the source to nominal polling.
func (m *Monitor) onSuccess(payload *core.NowPlaying) {
	m.mu.Lock()
	recovered := m.health.Mode != core.ModePolling
	m.health.Mode = core.ModePolling
	m.health.ConsecutiveFailures = 0
	m.health.LastSuccess = m.now()
	m.health.FallbackWindowStart = time.Time{}
	m.attempt = 0
	m.cleared = false
	m.authFailures = 0
	m.authRetry = false
	m.lastPayload = payload
	m.mu.Unlock()

	if recovered {
		m.logger.Info("source recovered")
	}
	m.metrics.SetSourceMode(m.src.Provider(), core.ModePolling)
	m.sink.SetOffline(m.src.Provider(), false)
	m.sink.Update(payload.Normalize())
}

func (m *Monitor) onFailure(ctx context.Context, err error) {
	// Auth sub-path: refresh the credential and retry quickly a bounded
	// number of times before the failure counts toward the generic
	// threshold. A single expired token must not push the source toward
	// degraded.
	if merr.IsAuth(err) {
		if r, ok := m.src.(core.CredentialRefresher); ok {
			m.mu.Lock()
			retries := m.authFailures
			m.mu.Unlock()
			if retries < m.policy.AuthMaxRetries {
				m.mu.Lock()
				m.authFailures++
				m.authRetry = true
				m.mu.Unlock()
				m.logger.Warn("auth failure, refreshing credential",
					zap.Int("attempt", retries+1), zap.Error(err))
				if rerr := r.RefreshCredential(ctx); rerr != nil {
					m.logger.Warn("credential refresh failed", zap.Error(rerr))
				}
				return
			}
		}
	}

	m.mu.Lock()
	now := m.now()
	m.health.ConsecutiveFailures++
	m.health.LastFailure = now
	if m.health.FallbackWindowStart.IsZero() {
		m.health.FallbackWindowStart = now
	}
	failures := m.health.ConsecutiveFailures
	failingFor := now.Sub(m.health.FallbackWindowStart)

	invalidate := false
	if m.policy.ClearAfterFailures > 0 && failures >= m.policy.ClearAfterFailures && !m.cleared {
		m.cleared = true
		invalidate = true
	}

	mode := m.health.Mode
	offline := false
	if failures >= m.policy.MaxFailures {
		if mode == core.ModePolling || mode == core.ModeIdle {
			m.health.Mode = core.ModeDegraded
		}
		m.attempt++
		if m.health.Mode == core.ModeDegraded && failingFor >= m.policy.RecoveryWindow {
			m.health.Mode = core.ModeOffline
			offline = true
			if !m.cleared {
				m.cleared = true
				invalidate = true
			}
		}
	}
	newMode := m.health.Mode
	m.mu.Unlock()

	m.logger.Warn("poll failed",
		zap.Int("consecutive_failures", failures),
		zap.String("kind", string(merr.KindOf(err))),
		zap.String("mode", string(newMode)),
		zap.Error(err))

	if mode != newMode {
		m.metrics.SetSourceMode(m.src.Provider(), newMode)
		if newMode == core.ModeDegraded {
			m.logger.Warn("source degraded, backing off",
				zap.Duration("retry_initial", m.policy.RetryInitial))
		}
		if newMode == core.ModeOffline {
			m.logger.Warn("source offline, payload invalidated",
				zap.Duration("failing_for", failingFor))
		}
	}

	if invalidate {
		m.sink.Invalidate(m.src.Provider())
	}
	if offline {
		m.sink.SetOffline(m.src.Provider(), true)
	}
}

// nextInterval picks the wait before the next attempt from the current
// mode and cadence rules.
func (m *Monitor) nextInterval() time.Duration {
	m.mu.Lock()
	mode := m.health.Mode
	authRetry := m.authRetry
	m.authRetry = false
	attempt := m.attempt
	paused := m.lastPayload != nil && !m.lastPayload.Playback.IsPlaying
	m.mu.Unlock()

	switch {
	case authRetry:
		return m.policy.AuthRetryInterval
	case mode == core.ModeOffline:
		if m.policy.OfflineProbe > 0 {
			return m.policy.OfflineProbe
		}
		return m.policy.RetryMax
	case mode == core.ModeDegraded:
		return backoffDelay(m.policy.RetryInitial, m.policy.RetryMax, attempt-1, m.rng)
	}

	if m.sink.ActiveAbove(m.src.Priority()) {
		return m.intervals.Reduced
	}
	if paused && (m.needsProgress == nil || !m.needsProgress()) {
		return m.intervals.Paused
	}
	return m.intervals.Base
}

func (m *Monitor) setMode(mode core.Mode) {
	m.mu.Lock()
	m.health.Mode = mode
	m.mu.Unlock()
	m.metrics.SetSourceMode(m.src.Provider(), mode)
}
