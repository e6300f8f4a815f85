package ws

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 256 * 1024, // 256KB for base64 encoded JPEG frames
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades /ws requests and runs the client pumps
type Handler struct {
	hub          *Hub
	dispatcher   Dispatcher
	validator    middleware.TokenValidator
	requireToken bool
	log          zerolog.Logger
}

// NewHandler creates a new WebSocket handler. validator may be nil to accept anonymous clients.
func NewHandler(hub *Hub, dispatcher Dispatcher, validator middleware.TokenValidator, requireToken bool) *Handler {
	return &Handler{
		hub:          hub,
		dispatcher:   dispatcher,
		validator:    validator,
		requireToken: requireToken,
		log:          logging.Component("ws"),
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID int64
	var hasUser bool
	if h.validator != nil {
		claims, err := middleware.Authorize(h.validator, r, h.requireToken)
		if err != nil {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}
		if claims != nil {
			userID, hasUser = claims.UserID, true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	c := newClient(uuid.NewString(), conn)
	c.userID, c.hasUser = userID, hasUser
	h.hub.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	go c.writePump()
	go func() {
		defer func() {
			cancel()
			h.dispatcher.Disconnect(c)
			h.hub.Unregister(c)
			c.Close()
		}()
		c.readPump(ctx, h.dispatcher)
	}()
}
