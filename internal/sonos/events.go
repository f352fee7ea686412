package sonos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// NotifyListener receives GENA NOTIFY callbacks from subscribed devices.
// The payload is not parsed here: a NOTIFY is only a hint that something
// changed, answered with an immediate out-of-band poll.
type NotifyListener struct {
	e      *echo.Echo
	logger *zap.Logger
	port   int
	notify func()
}

// NewNotifyListener creates a listener on the given port. notify fires on
// every received callback.
func NewNotifyListener(port int, notify func(), logger *zap.Logger) *NotifyListener {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	l := &NotifyListener{e: e, logger: logger, port: port, notify: notify}
	e.Add("NOTIFY", "/notify", l.handleNotify)
	return l
}

// Start serves the listener until ctx is cancelled.
func (l *NotifyListener) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := l.e.Start(fmt.Sprintf(":%d", l.port))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.e.Shutdown(shutdownCtx)
	}()

	// Give a bind failure a moment to surface.
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (l *NotifyListener) handleNotify(c echo.Context) error {
	l.logger.Debug("transport event received",
		zap.String("sid", c.Request().Header.Get("SID")))
	if l.notify != nil {
		l.notify()
	}
	return c.NoContent(http.StatusOK)
}

// CallbackURL returns the URL a device should NOTIFY, using the local
// address that routes to the device.
func (l *NotifyListener) CallbackURL(deviceAddr string) (string, error) {
	ip, err := localAddrFor(deviceAddr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d/notify", ip, l.port), nil
}

// localAddrFor returns the local IP used to reach target. No traffic is
// sent; UDP dial only selects a route.
func localAddrFor(target string) (string, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(target, "9"))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
