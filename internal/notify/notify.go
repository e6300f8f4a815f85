// Package notify forwards persisted detection events to external systems.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/config"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
)

const publishTimeout = 10 * time.Second

// Notifier is an event sink with a connection to release on shutdown
type Notifier interface {
	pipeline.EventHandler
	Name() string
	Close() error
}

// Connect opens every configured notifier concurrently.
// A sink that cannot connect is logged and left out; notifications are best effort.
func Connect(ctx context.Context, cfg *config.Config) []Notifier {
	log := logging.Component("notify")

	var (
		mu  sync.Mutex
		out []Notifier
	)
	add := func(n Notifier) {
		mu.Lock()
		out = append(out, n)
		mu.Unlock()
	}

	var g errgroup.Group
	if cfg.MQTT.Broker != "" {
		g.Go(func() error {
			n, err := DialMQTT(ctx, cfg.MQTT)
			if err != nil {
				log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt notifications disabled")
				return nil
			}
			add(n)
			return nil
		})
	}
	if cfg.AMQP.URL != "" {
		g.Go(func() error {
			n, err := DialAMQP(cfg.AMQP)
			if err != nil {
				log.Warn().Err(err).Msg("amqp notifications disabled")
				return nil
			}
			add(n)
			return nil
		})
	}
	if cfg.Telegram.BotToken != "" {
		g.Go(func() error {
			n, err := NewTelegram(cfg.Telegram, cfg.RecordDir)
			if err != nil {
				log.Warn().Err(err).Msg("telegram notifications disabled")
				return nil
			}
			add(n)
			return nil
		})
	}
	g.Wait()

	for _, n := range out {
		log.Info().Str("sink", n.Name()).Msg("event notifications enabled")
	}
	return out
}

// FormatAlert renders an event as a short HTML message
func FormatAlert(v *database.EventView) string {
	var b strings.Builder
	b.WriteString("<b>Detection alert</b>\n")
	camera := v.CameraName
	if camera == "" {
		camera = fmt.Sprintf("Camera %d", v.CameraID)
	}
	fmt.Fprintf(&b, "Camera: %s", html.EscapeString(camera))
	if v.Location != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(v.Location))
	}
	fmt.Fprintf(&b, "\nObject: %s (%s)\n", html.EscapeString(v.DetectedObject), html.EscapeString(v.Confidence))
	fmt.Fprintf(&b, "Time: %s", html.EscapeString(v.Timestamp))
	if v.UserName != "" {
		fmt.Fprintf(&b, "\nOn duty: %s", html.EscapeString(v.UserName))
	}
	return b.String()
}
