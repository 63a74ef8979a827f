package ingest

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"courierwatch/internal/logging"
)

// MQTTConfig holds broker settings for MQTTSource.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Username  string
	Password  string
}

// MQTTSource subscribes to a device topic and enqueues every payload.
type MQTTSource struct {
	cfg    MQTTConfig
	q      Enqueuer
	client mqtt.Client
}

// NewMQTTSource builds the client. Nothing connects until Run.
func NewMQTTSource(cfg MQTTConfig, q Enqueuer) *MQTTSource {
	return &MQTTSource{cfg: cfg, q: q}
}

func (s *MQTTSource) handler(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		_, _ = HandlePayload(ctx, "mqtt:"+msg.Topic(), s.q, msg.Payload())
	}
}

func (s *MQTTSource) buildClient(ctx context.Context) mqtt.Client {
	log := logging.FromContext(ctx)
	h := s.handler(ctx)

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetOrderMatters(false).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}

	opts.OnConnect = func(c mqtt.Client) {
		log.Info("connected to mqtt broker", "broker", s.cfg.BrokerURL)
		if token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, h); token.Wait() && token.Error() != nil {
			log.Error("mqtt subscribe failed", "topic", s.cfg.Topic, "err", token.Error())
		} else {
			log.Info("subscribed", "topic", s.cfg.Topic, "qos", s.cfg.QoS)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
	}
	return mqtt.NewClient(opts)
}

// Run connects with exponential backoff and consumes until ctx is done.
func (s *MQTTSource) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	s.client = s.buildClient(ctx)
	backoff, maxBackoff := time.Second, 30*time.Second
	for {
		token := s.client.Connect()
		select {
		case <-token.Done():
		case <-ctx.Done():
			s.client.Disconnect(250)
			return nil
		}
		if token.Error() == nil {
			break
		}
		log.Warn("mqtt connect failed", "err", token.Error(), "retry_in", backoff)
		select {
		case <-time.After(backoff):
			if backoff < maxBackoff {
				backoff *= 2
			}
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	s.client.Disconnect(250)
	log.Info("mqtt source stopped")
	return nil
}
