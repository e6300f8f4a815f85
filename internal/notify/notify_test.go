package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/config"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
)

func sampleEvent() *database.EventView {
	return &database.EventView{
		ID:             7,
		Timestamp:      "2025-06-01 12:00:00",
		CameraID:       2,
		CameraName:     "North <gate>",
		Location:       "Ridge",
		DetectedObject: "person",
		Confidence:     "0.91",
		ThumbnailPath:  database.DefaultThumbnail,
		VideoPathRGB:   "event_20250601_120000_cam2.mp4",
	}
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTT struct {
	topic        string
	qos          byte
	payload      []byte
	token        *fakeToken
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.payload = topic, qos, payload.([]byte)
	if c.token == nil {
		return &fakeToken{}
	}
	return c.token
}

func (c *fakeMQTT) Disconnect(uint) { c.disconnected = true }

func TestMQTTPublish(t *testing.T) {
	client := &fakeMQTT{}
	n := newMQTTNotifier(client, "site1", 1)

	if err := n.Publish(sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if client.topic != "site1/events/2" || client.qos != 1 {
		t.Errorf("topic=%s qos=%d", client.topic, client.qos)
	}
	var got database.EventView
	if err := json.Unmarshal(client.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != 7 || got.DetectedObject != "person" {
		t.Errorf("payload = %+v", got)
	}

	n.Close()
	if !client.disconnected {
		t.Error("client not disconnected")
	}
}

func TestMQTTPublishFailures(t *testing.T) {
	n := newMQTTNotifier(&fakeMQTT{token: &fakeToken{timeout: true}}, "", 0)
	if err := n.Publish(sampleEvent()); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("err = %v", err)
	}
	if n.Topic(1) != "msdash/events/1" {
		t.Errorf("default prefix topic = %s", n.Topic(1))
	}

	n = newMQTTNotifier(&fakeMQTT{token: &fakeToken{err: errors.New("not connected")}}, "x", 0)
	if err := n.Publish(sampleEvent()); err == nil {
		t.Error("broker error not returned")
	}
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPPublish(t *testing.T) {
	ch := &fakeChannel{}
	n := newAMQPNotifier(ch, "msdash.events")

	if err := n.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if ch.exchange != "msdash.events" || ch.key != "event.person" {
		t.Errorf("exchange=%s key=%s", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent || ch.msg.ContentType != "application/json" {
		t.Errorf("message = %+v", ch.msg)
	}
	if n.Close() != nil || !ch.closed {
		t.Error("channel not closed")
	}

	ch.err = errors.New("channel closed")
	if err := n.Publish(context.Background(), sampleEvent()); err == nil {
		t.Error("publish error not returned")
	}
}

func TestRoutingKey(t *testing.T) {
	tests := map[string]string{
		"person": "event.person",
		"Scrofa": "event.scrofa",
		"a.b":    "event.a_b",
		"":       "event.unknown",
	}
	for class, want := range tests {
		if got := RoutingKey(class); got != want {
			t.Errorf("RoutingKey(%q) = %s, want %s", class, got, want)
		}
	}
}

type fakeSender struct {
	text  string
	photo []byte
}

func (s *fakeSender) SendMessage(_ context.Context, text string) error {
	s.text = text
	return nil
}

func (s *fakeSender) SendPhoto(_ context.Context, photo []byte, caption string) error {
	s.photo, s.text = photo, caption
	return nil
}

func TestTelegramSendsTextWithoutThumbnail(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegramNotifier(sender, t.TempDir())

	if err := n.Send(context.Background(), sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if sender.photo != nil {
		t.Error("placeholder thumbnail attached")
	}
	if !strings.Contains(sender.text, "North &lt;gate&gt;") || !strings.Contains(sender.text, "person (0.91)") {
		t.Errorf("text = %q", sender.text)
	}
}

func TestTelegramAttachesThumbnail(t *testing.T) {
	dir := t.TempDir()
	name := "event_20250601_120000_cam2.jpg"
	if err := os.WriteFile(filepath.Join(dir, name), []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{}
	n := newTelegramNotifier(sender, dir)

	ev := sampleEvent()
	ev.ThumbnailPath = filepath.Join("somewhere", name)
	if err := n.Send(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(sender.photo) != 3 {
		t.Errorf("photo = %v", sender.photo)
	}

	// not written yet
	ev.ThumbnailPath = "event_missing.jpg"
	sender.photo = nil
	n.Send(context.Background(), ev)
	if sender.photo != nil {
		t.Error("missing thumbnail should fall back to text")
	}
}

func TestFormatAlertWithoutName(t *testing.T) {
	ev := &database.EventView{CameraID: 4, DetectedObject: "inermis", Confidence: "0.80", UserName: "kim"}
	got := FormatAlert(ev)
	if !strings.Contains(got, "Camera 4") || !strings.Contains(got, "On duty: kim") {
		t.Errorf("alert = %q", got)
	}
}

func TestConnectWithNothingConfigured(t *testing.T) {
	cfg := config.Default()
	if got := Connect(context.Background(), cfg); len(got) != 0 {
		t.Errorf("notifiers = %d", len(got))
	}

	cfg.Telegram = config.TelegramConfig{BotToken: "t", ChatID: "1"}
	got := Connect(context.Background(), cfg)
	if len(got) != 1 || got[0].Name() != "telegram" {
		t.Errorf("notifiers = %v", got)
	}
}
