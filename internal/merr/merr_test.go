package merr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"network", Network("poll", errors.New("timeout")), KindNetwork},
		{"protocol", Protocol("parse", errors.New("bad xml")), KindProtocol},
		{"auth", Auth("token", errors.New("expired")), KindAuth},
		{"subscription", Subscription("renew", errors.New("412")), KindSubscription},
		{"plain error defaults to network", errors.New("boom"), KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrappingPreservesKind(t *testing.T) {
	inner := Auth("refresh", errors.New("invalid_grant"))
	wrapped := fmt.Errorf("spotify poll: %w", inner)

	if !IsAuth(wrapped) {
		t.Error("IsAuth() = false after wrapping, want true")
	}
	if IsProtocol(wrapped) {
		t.Error("IsProtocol() = true, want false")
	}
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("connection refused")
	err := Network("subscribe", sentinel)

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is() did not find the wrapped sentinel")
	}
	want := "subscribe: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
