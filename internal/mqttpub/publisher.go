// Package mqttpub publishes coordinator output to an MQTT broker as
// retained JSON, for home-automation consumers. Entirely optional: an
// empty broker URL disables it.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tessro/marquee/internal/config"
	"github.com/tessro/marquee/internal/coordinator"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher mirrors the output stream onto one retained MQTT topic.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *zap.Logger
	client mqtt.Client
}

// New creates a Publisher. Call Connect before Run.
func New(cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// Connect establishes the broker connection. The paho auto-reconnect
// loop owns recovery from there.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Run publishes every frame from the subscription until ctx is
// cancelled, then disconnects.
func (p *Publisher) Run(ctx context.Context, frames <-chan coordinator.Output) error {
	defer p.client.Disconnect(250)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-frames:
			if !ok {
				return nil
			}
			p.publish(out)
		}
	}
}

func (p *Publisher) publish(out coordinator.Output) {
	if !p.client.IsConnected() {
		// Drop the frame; the retained topic catches consumers up once
		// the auto-reconnect succeeds and the next frame lands.
		p.logger.Debug("mqtt disconnected, frame dropped")
		return
	}

	payload, err := json.Marshal(out)
	if err != nil {
		p.logger.Error("mqtt payload marshal failed", zap.Error(err))
		return
	}

	token := p.client.Publish(p.cfg.Topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.logger.Warn("mqtt publish timeout", zap.String("topic", p.cfg.Topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("mqtt publish failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
	}
}
