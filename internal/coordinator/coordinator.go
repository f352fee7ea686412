// Package coordinator arbitrates between sources: it holds the latest
// payload per source, decides which source owns the output by priority
// and freshness, and emits a single unified now-playing stream.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/core"
	"github.com/tessro/marquee/internal/obs"
)

// Output is one frame of the unified stream. Payload is never nil; an
// idle frame carries a payload with Nothing() == true.
type Output struct {
	Provider core.Provider    `json:"provider"`
	Payload  *core.NowPlaying `json:"payload"`
}

// entry is the coordinator's view of one registered source.
type entry struct {
	provider  core.Provider
	priority  int
	freshness core.Freshness

	payload   *core.NowPlaying
	updatedAt time.Time // payload's embedded timestamp
	offline   bool
}

// fresh reports whether the entry has a payload younger than window.
func (e *entry) fresh(now time.Time, window time.Duration) bool {
	if e.payload == nil || e.offline {
		return false
	}
	return now.Sub(e.updatedAt) <= window
}

// Options tunes the arbitration clock rules.
type Options struct {
	// StaleTakeover is how long the active source must have been stale
	// before a lower-priority source may displace it.
	StaleTakeover time.Duration
	// Dwell is how long takeover conditions must hold continuously
	// before a switch away from a live active source commits.
	Dwell time.Duration
	// Sweep is the periodic re-evaluation interval; dwell and staleness
	// expire by clock, not only on updates.
	Sweep time.Duration
}

// Coordinator applies the priority-takeover rules. It implements
// monitor.Sink. All state is guarded by mu; decisions happen on every
// sink call and on a periodic sweep.
type Coordinator struct {
	opts    Options
	logger  *zap.Logger
	metrics *obs.Metrics
	now     func() time.Time

	mu         sync.Mutex
	sources    map[core.Provider]*entry
	ordered    []*entry // priority asc, registration order for equals
	active     core.Provider
	lastSwitch time.Time // instant of the most recent active change

	// pending tracks a takeover waiting out the dwell window.
	pendingCandidate core.Provider
	pendingSince     time.Time

	lastHash    uint64
	subscribers map[uint64]chan Output
	nextSubID   uint64
}

// New creates a Coordinator. Zero-value option fields disable their rule
// (a zero Dwell commits takeovers immediately).
func New(opts Options, logger *zap.Logger, metrics *obs.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Sweep <= 0 {
		opts.Sweep = time.Second
	}
	return &Coordinator{
		opts:        opts,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
		sources:     make(map[core.Provider]*entry),
		subscribers: make(map[uint64]chan Output),
	}
}

// Register adds a source to arbitration. Must be called before its
// monitor starts delivering updates.
func (c *Coordinator) Register(provider core.Provider, priority int, freshness core.Freshness) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[provider]; ok {
		return
	}
	e := &entry{provider: provider, priority: priority, freshness: freshness}
	c.sources[provider] = e
	c.ordered = append(c.ordered, e)
	sort.SliceStable(c.ordered, func(i, j int) bool {
		return c.ordered[i].priority < c.ordered[j].priority
	})
}

// Deregister removes a source, forcing a new decision if it was active.
func (c *Coordinator) Deregister(provider core.Provider) {
	c.mu.Lock()
	e, ok := c.sources[provider]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.sources, provider)
	for i, o := range c.ordered {
		if o == e {
			c.ordered = append(c.ordered[:i], c.ordered[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.decide()
}

// Update records a fresh payload. Payloads older than the stored one
// (by embedded timestamp) are discarded: delivery order does not decide
// freshness, the payload clock does.
func (c *Coordinator) Update(p *core.NowPlaying) {
	if p == nil {
		return
	}
	c.mu.Lock()
	e, ok := c.sources[p.Provider]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("update from unregistered source",
			zap.String("provider", string(p.Provider)))
		return
	}
	if !e.updatedAt.IsZero() && p.Playback.Timestamp.Before(e.updatedAt) {
		c.mu.Unlock()
		return
	}
	e.payload = p
	e.updatedAt = p.Playback.Timestamp
	if e.updatedAt.IsZero() {
		e.updatedAt = c.now()
	}
	c.mu.Unlock()
	c.decide()
}

// Invalidate clears the provider's payload from eligibility.
func (c *Coordinator) Invalidate(provider core.Provider) {
	c.mu.Lock()
	if e, ok := c.sources[provider]; ok {
		e.payload = nil
		e.updatedAt = time.Time{}
	}
	c.mu.Unlock()
	c.decide()
}

// SetOffline marks the provider (in)eligible regardless of payload age.
func (c *Coordinator) SetOffline(provider core.Provider, offline bool) {
	c.mu.Lock()
	changed := false
	if e, ok := c.sources[provider]; ok && e.offline != offline {
		e.offline = offline
		changed = true
	}
	c.mu.Unlock()
	if changed {
		c.decide()
	}
}

// ActiveAbove reports whether a strictly-higher-priority source is
// active. Monitors use it to drop to the reduced poll cadence.
func (c *Coordinator) ActiveAbove(priority int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return false
	}
	e, ok := c.sources[c.active]
	return ok && e.priority < priority
}

// Active returns the currently active provider, or empty.
func (c *Coordinator) Active() core.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Now returns the current unified payload. Never nil once a decision has
// run; an idle frame when no source is eligible.
func (c *Coordinator) Now() Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Coordinator) currentLocked() Output {
	if c.active != "" {
		if e, ok := c.sources[c.active]; ok && e.payload != nil {
			return Output{Provider: c.active, Payload: e.payload}
		}
	}
	return Output{Payload: idlePayload()}
}

func idlePayload() *core.NowPlaying {
	return &core.NowPlaying{
		Playback: core.Playback{Status: core.StatusStopped, Timestamp: time.Now()},
	}
}

// Subscribe returns a channel of output frames. Slow consumers drop
// intermediate frames rather than block arbitration. The returned cancel
// func closes the channel.
func (c *Coordinator) Subscribe() (<-chan Output, func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Output, 8)
	c.subscribers[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if ch, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Run sweeps periodically until ctx is cancelled. Sweeps let dwell and
// staleness windows expire even when no source delivers an update.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.decide()
		}
	}
}

// decide re-runs arbitration and emits an output frame when the result
// changed.
func (c *Coordinator) decide() {
	c.mu.Lock()

	now := c.now()
	challenger := c.bestChallengerLocked(now)
	activeEntry := c.activeEntryLocked()
	activeAlive := activeEntry != nil && activeEntry.fresh(now, activeEntry.freshness.Grace)

	var next core.Provider
	switch {
	case activeAlive && challenger == nil:
		next = c.active
		c.clearPendingLocked()
	case !activeAlive:
		// Active is gone (offline, invalidated, or past grace): switch
		// immediately, or go idle.
		c.clearPendingLocked()
		if challenger != nil {
			next = challenger.provider
		}
	case challenger.priority < activeEntry.priority:
		// A higher-priority source preempts at once, but only on playback
		// newer than the last switch. A source just displaced for
		// staleness is still within its own StaleAfter window and would
		// otherwise reclaim the output on the very next sweep.
		next = c.active
		if !challenger.updatedAt.Before(c.lastSwitch) {
			next = challenger.provider
		}
		c.clearPendingLocked()
	default:
		// Lower-priority takeover: the active source must have been
		// stale past the takeover window, the challenger must not carry
		// the same track, and the condition must hold through dwell.
		next = c.active
		activeAge := now.Sub(activeEntry.updatedAt)
		switch {
		case activeAge <= c.opts.StaleTakeover:
			c.clearPendingLocked()
		case sameTrack(activeEntry.payload, challenger.payload):
			c.clearPendingLocked()
		case c.pendingCandidate != challenger.provider:
			c.pendingCandidate = challenger.provider
			c.pendingSince = now
		case now.Sub(c.pendingSince) >= c.opts.Dwell:
			next = challenger.provider
			c.clearPendingLocked()
		}
	}

	switched := next != c.active
	if switched {
		c.lastSwitch = now
	}
	c.active = next
	out := c.currentLocked()

	hash, err := hashstructure.Hash(out, hashstructure.FormatV2, nil)
	if err == nil && hash == c.lastHash {
		c.mu.Unlock()
		return
	}
	c.lastHash = hash

	subs := make([]chan Output, 0, len(c.subscribers))
	for _, ch := range c.subscribers {
		subs = append(subs, ch)
	}
	known := make([]core.Provider, 0, len(c.ordered))
	for _, e := range c.ordered {
		known = append(known, e.provider)
	}
	c.mu.Unlock()

	if switched {
		c.metrics.RecordTakeover()
		c.metrics.SetActiveSource(next, known)
		c.logger.Info("active source changed",
			zap.String("provider", string(next)))
	}

	for _, ch := range subs {
		select {
		case ch <- out:
		default:
		}
	}
}

// bestChallengerLocked returns the best strictly-fresh source other
// than the active one: lowest priority number wins, most recent payload
// timestamp breaks ties. The active source is judged by its own grace
// window in decide, never by this scan.
func (c *Coordinator) bestChallengerLocked(now time.Time) *entry {
	var best *entry
	for _, e := range c.ordered {
		if e.provider == c.active {
			continue
		}
		if !e.fresh(now, e.freshness.StaleAfter) {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		if e.priority > best.priority {
			break // ordered by priority; nothing better follows
		}
		if e.updatedAt.After(best.updatedAt) {
			best = e
		}
	}
	return best
}

func (c *Coordinator) activeEntryLocked() *entry {
	if c.active == "" {
		return nil
	}
	return c.sources[c.active]
}

func (c *Coordinator) clearPendingLocked() {
	c.pendingCandidate = ""
	c.pendingSince = time.Time{}
}

// sameTrack reports whether both payloads carry the same track identity.
// A retreating source showing the track the challenger is already
// playing is not worth a switch.
func sameTrack(a, b *core.NowPlaying) bool {
	if a == nil || b == nil || !a.HasTrack() || !b.HasTrack() {
		return false
	}
	return a.TrackID() == b.TrackID()
}
