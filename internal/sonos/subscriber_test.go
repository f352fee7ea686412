package sonos

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tessro/marquee/internal/merr"
	"github.com/tessro/marquee/internal/transport"
)

// gena is a fake device event endpoint.
type gena struct {
	subscribes int32
	renews     int32
	rejectSID  atomic.Bool // reply 412 to renewals
}

func (g *gena) handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "SUBSCRIBE" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if sid := r.Header.Get("SID"); sid != "" {
		if g.rejectSID.Load() {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		atomic.AddInt32(&g.renews, 1)
		w.Header().Set("SID", sid)
		w.Header().Set("TIMEOUT", "Second-600")
		w.WriteHeader(http.StatusOK)
		return
	}
	atomic.AddInt32(&g.subscribes, 1)
	w.Header().Set("SID", "uuid:sub-1")
	w.Header().Set("TIMEOUT", "Second-600")
	w.WriteHeader(http.StatusOK)
}

func newTestSubscriber(t *testing.T) (*Subscriber, *gena, string) {
	t.Helper()
	g := &gena{}
	srv := httptest.NewServer(http.HandlerFunc(g.handler))
	t.Cleanup(srv.Close)
	sub := NewSubscriber(transport.NewAdapter(), 600*time.Second, 0.9, time.Second, nil)
	return sub, g, srv.URL
}

func TestSubscribeStoresSID(t *testing.T) {
	sub, g, host := newTestSubscriber(t)
	defer sub.Reset()

	if err := sub.Subscribe(context.Background(), host, "http://10.0.1.2:8806/notify"); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if sub.SID() != "uuid:sub-1" {
		t.Errorf("SID() = %q, want uuid:sub-1", sub.SID())
	}
	if n := atomic.LoadInt32(&g.subscribes); n != 1 {
		t.Errorf("subscribe requests = %d, want 1", n)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	sub, g, host := newTestSubscriber(t)
	defer sub.Reset()

	ctx := context.Background()
	if err := sub.Subscribe(ctx, host, "http://10.0.1.2:8806/notify"); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	// Second subscribe while subscribed must not issue a network request.
	if err := sub.Subscribe(ctx, host, "http://10.0.1.2:8806/notify"); err != nil {
		t.Fatalf("second Subscribe() error: %v", err)
	}
	if n := atomic.LoadInt32(&g.subscribes); n != 1 {
		t.Errorf("subscribe requests = %d, want 1 (idempotent)", n)
	}
}

func TestRenewKeepsSubscription(t *testing.T) {
	sub, g, host := newTestSubscriber(t)
	defer sub.Reset()

	ctx := context.Background()
	if err := sub.Subscribe(ctx, host, "http://10.0.1.2:8806/notify"); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if err := sub.Renew(ctx); err != nil {
		t.Fatalf("Renew() error: %v", err)
	}
	if n := atomic.LoadInt32(&g.renews); n != 1 {
		t.Errorf("renew requests = %d, want 1", n)
	}
	if sub.SID() == "" {
		t.Error("SID cleared by successful renew")
	}
}

func TestRenewPreconditionFailed(t *testing.T) {
	sub, g, host := newTestSubscriber(t)
	defer sub.Reset()

	failed := make(chan string, 1)
	sub.OnRenewFailed = func(h string) { failed <- h }

	ctx := context.Background()
	if err := sub.Subscribe(ctx, host, "http://10.0.1.2:8806/notify"); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	g.rejectSID.Store(true)
	err := sub.Renew(ctx)
	if err == nil {
		t.Fatal("Renew() = nil on 412, want error")
	}
	if !merr.IsSubscription(err) {
		t.Errorf("412 not classified as subscription error: %v", err)
	}
	if sub.SID() != "" {
		t.Error("SID not cleared after 412")
	}

	select {
	case h := <-failed:
		if h != host {
			t.Errorf("OnRenewFailed host = %q, want %q", h, host)
		}
	case <-time.After(time.Second):
		t.Error("OnRenewFailed did not fire")
	}

	// A fresh subscribe after the loss goes out on the wire again.
	g.rejectSID.Store(false)
	if err := sub.Subscribe(ctx, host, "http://10.0.1.2:8806/notify"); err != nil {
		t.Fatalf("resubscribe error: %v", err)
	}
	if n := atomic.LoadInt32(&g.subscribes); n != 2 {
		t.Errorf("subscribe requests = %d, want 2 after resubscription", n)
	}
}

func TestRenewWithoutSubscription(t *testing.T) {
	sub, _, _ := newTestSubscriber(t)
	if err := sub.Renew(context.Background()); err == nil {
		t.Error("Renew() without subscription succeeded")
	}
}

func TestUnsubscribeSwallowsFailures(t *testing.T) {
	sub := NewSubscriber(transport.NewAdapter(), 600*time.Second, 0.9, 100*time.Millisecond, nil)
	// Point at a dead host: teardown must not panic or error out.
	sub.mu.Lock()
	sub.state = stateSubscribed
	sub.sid = "uuid:dead"
	sub.host = "http://127.0.0.1:1"
	sub.mu.Unlock()

	sub.Unsubscribe(context.Background())
	if sub.SID() != "" {
		t.Error("SID not cleared by Unsubscribe")
	}
}

func TestParseLease(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"Second-600", 600 * time.Second},
		{"Second-120", 120 * time.Second},
		{"", 300 * time.Second},
		{"infinite", 300 * time.Second},
		{"Second-0", 300 * time.Second},
	}
	for _, tt := range tests {
		if got := parseLease(tt.in, 300*time.Second); got != tt.want {
			t.Errorf("parseLease(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
