package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/auth"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
)

type echoDispatcher struct {
	mu           sync.Mutex
	events       []string
	users        []int64
	disconnected chan string
}

func (d *echoDispatcher) Dispatch(_ context.Context, p Peer, event string, data json.RawMessage) {
	d.mu.Lock()
	d.events = append(d.events, event)
	if id, ok := p.UserID(); ok {
		d.users = append(d.users, id)
	}
	d.mu.Unlock()

	var req StopStreamRequest
	json.Unmarshal(data, &req)
	p.SendResponse(event + " ok")
}

func (d *echoDispatcher) Disconnect(p Peer) {
	d.disconnected <- p.ID()
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestCommandRoundTrip(t *testing.T) {
	jm := auth.NewJWTManager("secret", time.Hour)
	token, _, _ := jm.GenerateToken(9, "op", "USER")
	d := &echoDispatcher{disconnected: make(chan string, 1)}
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub, d, jm, false))
	defer srv.Close()

	conn := dial(t, srv, "?token="+token)
	conn.WriteJSON(map[string]any{"event": EventStopStream, "data": map[string]any{"camera_id": 2}})

	env := readEnvelope(t, conn)
	var msg MessagePayload
	json.Unmarshal(env.Data, &msg)
	if env.Event != EventResponse || msg.Message != "stop_stream ok" {
		t.Errorf("got %s %q", env.Event, msg.Message)
	}

	d.mu.Lock()
	if len(d.users) != 1 || d.users[0] != 9 {
		t.Errorf("user ids = %v, want [9] from token", d.users)
	}
	d.mu.Unlock()

	conn.Close()
	select {
	case <-d.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not dispatched")
	}
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error("client not unregistered")
	}
}

func TestMalformedMessageGetsError(t *testing.T) {
	d := &echoDispatcher{disconnected: make(chan string, 1)}
	srv := httptest.NewServer(NewHandler(NewHub(), d, nil, false))
	defer srv.Close()

	conn := dial(t, srv, "")
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	if env := readEnvelope(t, conn); env.Event != EventError {
		t.Errorf("event = %s, want error", env.Event)
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	jm := auth.NewJWTManager("secret", time.Hour)
	d := &echoDispatcher{disconnected: make(chan string, 1)}
	srv := httptest.NewServer(NewHandler(NewHub(), d, jm, true))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded with bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v", resp)
	}

	url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("dial succeeded without required token")
	}
}

func TestNewEventBroadcast(t *testing.T) {
	d := &echoDispatcher{disconnected: make(chan string, 2)}
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub, d, nil, false))
	defer srv.Close()

	a := dial(t, srv, "")
	b := dial(t, srv, "")
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.HandleEvent(&database.EventView{ID: 42, DetectedObject: "person"})
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		var ev database.EventView
		json.Unmarshal(env.Data, &ev)
		if env.Event != EventNewEvent || ev.ID != 42 {
			t.Errorf("got %s %+v", env.Event, ev)
		}
	}
}

func TestSendFrameDropsWhenQueueFull(t *testing.T) {
	c := newClient("c1", nil)
	p := &pipeline.FramePayload{RGB: "x", TIR: "y", CameraID: int64(1)}

	for i := 0; i < sendQueueSize; i++ {
		if !c.SendFrame(p) {
			t.Fatalf("frame %d rejected before queue was full", i)
		}
	}
	if c.SendFrame(p) {
		t.Error("frame accepted on a full queue")
	}

	c.Close()
	<-c.send
	if c.SendFrame(p) {
		t.Error("frame accepted after close")
	}
}

func TestFrameEnvelopeShape(t *testing.T) {
	msg, err := encode(EventVideoFrame, &pipeline.FramePayload{
		RGB: "a", TIR: "b", CameraID: "test_video", PersonDetected: true,
		PlaybackInfo: &pipeline.PlaybackInfo{CurrentTime: 1.5, Duration: 10, CurrentFrame: 46, TotalFrames: 300},
	})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	json.Unmarshal(msg, &got)
	data := got["data"].(map[string]any)
	if got["event"] != "video_frame" || data["camera_id"] != "test_video" || data["current_frame"] != 46.0 || data["person_detected"] != true {
		t.Errorf("envelope = %s", msg)
	}

	msg, _ = encode(EventVideoFrame, &pipeline.FramePayload{CameraID: int64(3)})
	if strings.Contains(string(msg), "current_time") {
		t.Errorf("live frame carries playback fields: %s", msg)
	}
}
