package publish

import (
	"context"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttQoS            = 0
	mqttConnectTimeout = 5 * time.Second
	mqttDisconnectWait = 250 // milliseconds
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

type mqttSink struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to the broker and returns a publisher writing
// retained status messages to cfg.Topic.
func NewMQTTPublisher(cfg MQTTConfig) (*Publisher, error) {
	errFactory := errors.New()

	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, errFactory.WithData(errors.ErrInvalidConfig, cfg)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errFactory.WithData(errors.ErrTimeout, cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithData(cfg.Broker)
	}

	return newPublisher("mqtt", cfg.ClientID, &mqttSink{client: client, topic: cfg.Topic}), nil
}

func (s *mqttSink) send(ctx context.Context, _ string, payload []byte) error {
	token := s.client.Publish(s.topic, mqttQoS, true, payload)

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrTimeout, ctx.Err())
	}
}

func (s *mqttSink) close() error {
	s.client.Disconnect(mqttDisconnectWait)
	return nil
}
