package sonos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/merr"
	"github.com/tessro/marquee/internal/transport"
)

// EventEndpoint is the AVTransport GENA event path.
const EventEndpoint = "/MediaRenderer/AVTransport/Event"

type subState int

const (
	stateUnsubscribed subState = iota
	stateSubscribed
	stateRenewing
)

// Subscriber maintains a renewable GENA subscription to a coordinator's
// AVTransport event endpoint. It owns the renewal timer; the owner only
// calls Subscribe/Unsubscribe and reacts to OnRenewFailed by
// resubscribing from scratch.
type Subscriber struct {
	adapter       *transport.Adapter
	logger        *zap.Logger
	lease         time.Duration
	renewFraction float64
	timeout       time.Duration

	// OnRenewFailed fires when the device rejects a renewal with 412
	// (subscription lost). The stored SID is already cleared when it
	// fires. Never fatal.
	OnRenewFailed func(host string)

	mu       sync.Mutex
	state    subState
	sid      string
	host     string // base URL of the subscribed device
	callback string
	cancel   context.CancelFunc
	wake     chan struct{}
}

// NewSubscriber creates a Subscriber. lease is the requested lease (the
// device may grant less); renewal fires at renewFraction of the granted
// lease.
func NewSubscriber(adapter *transport.Adapter, lease time.Duration, renewFraction float64, timeout time.Duration, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lease <= 0 {
		lease = 600 * time.Second
	}
	if renewFraction <= 0 || renewFraction >= 1 {
		renewFraction = 0.9
	}
	return &Subscriber{
		adapter:       adapter,
		logger:        logger,
		lease:         lease,
		renewFraction: renewFraction,
		timeout:       timeout,
		wake:          make(chan struct{}, 1),
	}
}

// Subscribe issues a SUBSCRIBE to host's event endpoint with callbackURL
// as the NOTIFY target, then schedules renewals. Calling Subscribe while
// already subscribed to the same host is a no-op: no network request is
// made.
func (s *Subscriber) Subscribe(ctx context.Context, host, callbackURL string) error {
	s.mu.Lock()
	if s.state != stateUnsubscribed && s.host == host {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	sid, granted, err := s.subscribeCall(ctx, host, callbackURL, "")
	if err != nil {
		return err
	}

	s.mu.Lock()
	// Tear down a previous renewal loop if we switched hosts.
	if s.cancel != nil {
		s.cancel()
	}
	s.state = stateSubscribed
	s.sid = sid
	s.host = host
	s.callback = callbackURL

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("subscribed to transport events",
		zap.String("host", host),
		zap.String("sid", sid),
		zap.Duration("lease", granted))

	go s.renewLoop(loopCtx, granted)
	return nil
}

// Renew re-issues the subscribe call tagged with the stored SID. A 412
// response clears the subscription and fires OnRenewFailed; other
// failures leave the subscription in place for the next attempt.
func (s *Subscriber) Renew(ctx context.Context) error {
	s.mu.Lock()
	if s.state == stateUnsubscribed {
		s.mu.Unlock()
		return merr.Subscription("renew", errors.New("not subscribed"))
	}
	s.state = stateRenewing
	host, callback, sid := s.host, s.callback, s.sid
	s.mu.Unlock()

	_, _, err := s.subscribeCall(ctx, host, callback, sid)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if isPreconditionFailed(err) {
			// Subscription lost on the device side. Clear and let the
			// owner resubscribe from scratch.
			s.state = stateUnsubscribed
			s.sid = ""
			if s.cancel != nil {
				s.cancel()
				s.cancel = nil
			}
			s.logger.Warn("subscription lost, renewal rejected", zap.String("host", host))
			if s.OnRenewFailed != nil {
				go s.OnRenewFailed(host)
			}
			return err
		}
		s.state = stateSubscribed
		return err
	}

	s.state = stateSubscribed
	return nil
}

// Unsubscribe tears down the subscription. Best-effort: teardown
// failures are swallowed.
func (s *Subscriber) Unsubscribe(ctx context.Context) {
	s.mu.Lock()
	if s.state == stateUnsubscribed {
		s.mu.Unlock()
		return
	}
	host, sid := s.host, s.sid
	s.state = stateUnsubscribed
	s.sid = ""
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	header := http.Header{}
	header.Set("SID", sid)
	_, err := s.adapter.Do(ctx, transport.Request{
		Method:  "UNSUBSCRIBE",
		URL:     host + EventEndpoint,
		Header:  header,
		Timeout: s.timeout,
	})
	if err != nil {
		s.logger.Debug("unsubscribe failed", zap.String("host", host), zap.Error(err))
	}
}

// Reset drops local subscription state without a network call.
func (s *Subscriber) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateUnsubscribed
	s.sid = ""
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SID returns the current subscription id, empty when unsubscribed.
func (s *Subscriber) SID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// subscribeCall performs the SUBSCRIBE exchange. sid empty means a fresh
// subscription; non-empty tags a renewal.
func (s *Subscriber) subscribeCall(ctx context.Context, host, callbackURL, sid string) (string, time.Duration, error) {
	header := http.Header{}
	if sid == "" {
		header.Set("NT", "upnp:event")
		header.Set("CALLBACK", "<"+callbackURL+">")
	} else {
		header.Set("SID", sid)
	}
	header.Set("TIMEOUT", fmt.Sprintf("Second-%d", int(s.lease.Seconds())))

	resp, err := s.adapter.Do(ctx, transport.Request{
		Method:  "SUBSCRIBE",
		URL:     host + EventEndpoint,
		Header:  header,
		Timeout: s.timeout,
	})
	if err != nil {
		return "", 0, err
	}

	if resp.StatusCode == http.StatusPreconditionFailed {
		return "", 0, merr.Subscription("subscribe", errPreconditionFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, merr.Subscription("subscribe", fmt.Errorf("status %d", resp.StatusCode))
	}

	gotSID := resp.Header.Get("SID")
	if gotSID == "" {
		gotSID = sid
	}
	if gotSID == "" {
		return "", 0, merr.Subscription("subscribe", errors.New("no subscription id in response"))
	}

	return gotSID, parseLease(resp.Header.Get("TIMEOUT"), s.lease), nil
}

// renewLoop fires renewals at renewFraction of the granted lease until
// cancelled. A failed (non-412) renewal retries sooner rather than
// waiting out the remaining lease.
func (s *Subscriber) renewLoop(ctx context.Context, granted time.Duration) {
	interval := time.Duration(float64(granted) * s.renewFraction)
	retry := granted / 10
	if retry < time.Second {
		retry = time.Second
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.Renew(ctx); err != nil {
			if isPreconditionFailed(err) {
				return // Renew already cleared state and notified the owner
			}
			s.logger.Warn("renew failed, retrying", zap.Error(err))
			timer.Reset(retry)
			continue
		}
		timer.Reset(interval)
	}
}

var errPreconditionFailed = errors.New("precondition failed")

func isPreconditionFailed(err error) bool {
	return errors.Is(err, errPreconditionFailed)
}

// parseLease parses a GENA TIMEOUT header ("Second-600") into a duration,
// falling back to the requested lease.
func parseLease(header string, fallback time.Duration) time.Duration {
	header = strings.TrimSpace(header)
	const prefix = "Second-"
	if !strings.HasPrefix(header, prefix) {
		return fallback
	}
	secs, err := strconv.Atoi(header[len(prefix):])
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
