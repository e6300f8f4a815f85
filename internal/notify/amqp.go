package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/config"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes events to a durable topic exchange keyed by event.<class>
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	log      zerolog.Logger
}

var _ Notifier = (*AMQPNotifier)(nil)

// DialAMQP connects, opens a channel and declares the exchange
func DialAMQP(cfg config.AMQPConfig) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	n := newAMQPNotifier(ch, cfg.Exchange)
	n.conn = conn
	n.log.Info().Str("exchange", cfg.Exchange).Msg("rabbitmq initialized")
	return n, nil
}

func newAMQPNotifier(ch amqpChannel, exchange string) *AMQPNotifier {
	return &AMQPNotifier{
		ch:       ch,
		exchange: exchange,
		log:      logging.Component("amqp"),
	}
}

func (n *AMQPNotifier) Name() string { return "amqp" }

// RoutingKey returns event.<class> with dots in the class flattened
func RoutingKey(class string) string {
	class = strings.ReplaceAll(strings.ToLower(class), ".", "_")
	if class == "" {
		class = "unknown"
	}
	return "event." + class
}

func (n *AMQPNotifier) HandleEvent(v *database.EventView) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.Publish(ctx, v); err != nil {
		n.log.Error().Err(err).Int64("event_id", v.ID).Msg("failed to publish event")
	}
}

// Publish sends one persistent JSON message
func (n *AMQPNotifier) Publish(ctx context.Context, v *database.EventView) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := RoutingKey(v.DetectedObject)
	err = n.ch.PublishWithContext(ctx,
		n.exchange, // exchange
		key,        // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    fmt.Sprintf("event-%d", v.ID),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", key, err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	err := n.ch.Close()
	if n.conn != nil {
		if cerr := n.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
