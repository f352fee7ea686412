package core

import (
	"context"
	"time"
)

// Intervals holds a source's poll cadences. Reduced is used while a
// strictly-higher-priority source owns the display; Paused while the
// source's own payload is paused or stopped and no consumer needs
// high-frequency progress.
type Intervals struct {
	Base    time.Duration
	Reduced time.Duration
	Paused  time.Duration
}

// FailurePolicy holds a source's failure-handling tunables.
type FailurePolicy struct {
	// MaxFailures is the consecutive-failure count that moves the source
	// from polling to degraded retry.
	MaxFailures int

	// ClearAfterFailures invalidates the published payload once crossed,
	// even before the source goes offline. Zero disables the separate
	// threshold (the payload clears when the source goes offline).
	ClearAfterFailures int

	// Backoff for degraded retry: RetryInitial doubled per attempt,
	// jittered, capped at RetryMax.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// RecoveryWindow is how long degraded retries may keep failing before
	// the source goes offline. OfflineProbe is the fixed cooldown between
	// probes once offline.
	RecoveryWindow time.Duration
	OfflineProbe   time.Duration

	// Auth sub-path: quick retries after a credential refresh before an
	// auth failure counts toward the generic threshold.
	AuthMaxRetries    int
	AuthRetryInterval time.Duration
}

// Freshness holds the staleness thresholds the coordinator applies to a
// source. StaleAfter bounds eligibility; Grace is the more permissive
// window the currently active source is held to.
type Freshness struct {
	StaleAfter time.Duration
	Grace      time.Duration
}

// Source is the fixed contract a playback source implements to join the
// coordinator. Priority is static: lower is higher priority, 0 highest.
type Source interface {
	Provider() Provider
	Priority() int
	Poll(ctx context.Context) (*NowPlaying, error)
	Intervals() Intervals
	Failures() FailurePolicy
}

// Eventer is implemented by sources that receive push notifications. An
// event is a hint only: kick requests an immediate out-of-band poll.
type Eventer interface {
	StartEvents(ctx context.Context, kick func()) error
	StopEvents()
}

// CredentialRefresher is implemented by sources whose failures can be
// auth-classified. Refresh is invoked by the health state machine before
// the auth retry sub-path.
type CredentialRefresher interface {
	RefreshCredential(ctx context.Context) error
}
