package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendQueueSize  = 16
)

// Peer is the connection a command arrived on
type Peer interface {
	pipeline.Viewer

	ID() string
	// UserID is the operator id from the handshake token, if any
	UserID() (int64, bool)
	SendResponse(msg string)
}

// Dispatcher handles inbound commands for a connection
type Dispatcher interface {
	Dispatch(ctx context.Context, p Peer, event string, data json.RawMessage)
	Disconnect(p Peer)
}

// Client is one websocket connection
type Client struct {
	id      string
	userID  int64
	hasUser bool
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	log     zerolog.Logger
}

var _ Peer = (*Client)(nil)

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
		log:  logging.Component("ws").With().Str("client_id", id).Logger(),
	}
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// UserID returns the operator id carried by the handshake token
func (c *Client) UserID() (int64, bool) { return c.userID, c.hasUser }

// SendFrame queues a video frame. A full queue drops the frame so a slow
// viewer never stalls a session loop.
func (c *Client) SendFrame(p *pipeline.FramePayload) bool {
	msg, err := encode(EventVideoFrame, p)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to encode frame")
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendError sends an error message
func (c *Client) SendError(msg string) {
	c.Send(EventError, MessagePayload{Message: msg})
}

// SendResponse sends a command acknowledgement
func (c *Client) SendResponse(msg string) {
	c.Send(EventResponse, MessagePayload{Message: msg})
}

// Send queues a control message, waiting up to writeWait for queue space
func (c *Client) Send(event string, data any) bool {
	msg, err := encode(event, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("failed to encode message")
		return false
	}

	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		c.log.Warn().Str("event", event).Msg("send queue full, message dropped")
		return false
	}
}

// Close stops the write pump; safe to call more than once
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// writePump owns all writes to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

// readPump decodes inbound envelopes until the connection fails
func (c *Client) readPump(ctx context.Context, d Dispatcher) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.SendError("malformed message")
			continue
		}
		d.Dispatch(ctx, c, env.Event, env.Data)
	}
}
