package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/config"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

// mqttClient is the subset of mqtt.Client used for publishing
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTNotifier publishes events as JSON to <prefix>/events/<camera_id>
type MQTTNotifier struct {
	client mqttClient
	prefix string
	qos    byte
	log    zerolog.Logger
}

var _ Notifier = (*MQTTNotifier)(nil)

// DialMQTT connects to the broker and returns a notifier
func DialMQTT(ctx context.Context, cfg config.MQTTConfig) (*MQTTNotifier, error) {
	log := logging.Component("mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	wait := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < wait {
		wait = time.Until(dl)
	}
	if !token.WaitTimeout(wait) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTNotifier(client, cfg.TopicPrefix, cfg.QoS), nil
}

func newMQTTNotifier(client mqttClient, prefix string, qos byte) *MQTTNotifier {
	if prefix == "" {
		prefix = "msdash"
	}
	return &MQTTNotifier{
		client: client,
		prefix: prefix,
		qos:    qos,
		log:    logging.Component("mqtt"),
	}
}

func (n *MQTTNotifier) Name() string { return "mqtt" }

// Topic returns the topic an event for cameraID is published on
func (n *MQTTNotifier) Topic(cameraID int64) string {
	return fmt.Sprintf("%s/events/%d", n.prefix, cameraID)
}

// HandleEvent publishes the event and logs failures
func (n *MQTTNotifier) HandleEvent(v *database.EventView) {
	if err := n.Publish(v); err != nil {
		n.log.Error().Err(err).Int64("event_id", v.ID).Msg("failed to publish event")
	}
}

// Publish sends one event and waits for the broker acknowledgement
func (n *MQTTNotifier) Publish(v *database.EventView) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := n.Topic(v.CameraID)
	token := n.client.Publish(topic, n.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	n.log.Debug().Str("topic", topic).Int("size", len(payload)).Msg("event published")
	return nil
}

// Close disconnects with a short grace period
func (n *MQTTNotifier) Close() error {
	n.client.Disconnect(250)
	return nil
}
