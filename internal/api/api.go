// Package api serves the dashboard's REST endpoints on a goa muxer.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goahttp "goa.design/goa/v3/http"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/auth"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/media"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/middleware"
)

// recentEvents is the size of the event list page
const recentEvents = 20

// Login issues tokens
type Login interface {
	middleware.TokenValidator
	Authenticate(ctx context.Context, username, password string) (string, int64, error)
}

// EventStore lists persisted events
type EventStore interface {
	ListRecentEvents(ctx context.Context, limit int) ([]*database.EventView, error)
}

// SettingsStore reads and writes app_config entries
type SettingsStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SaveConfig(ctx context.Context, key, value string) error
}

// Pinger reports database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineHealth reports whether the detection engine serves a model
type EngineHealth interface {
	Health(ctx context.Context, model string) error
}

// SessionCounter reports the number of running sessions
type SessionCounter interface {
	Count() int
}

// Deps are the collaborators behind the REST handlers. Engine and Sessions may be nil.
type Deps struct {
	Login        Login
	Events       EventStore
	Settings     SettingsStore
	DB           Pinger
	Engine       EngineHealth
	Sessions     SessionCounter
	Library      *media.Library
	ModelsDir    string
	DefaultModel string
	RequireToken bool
}

// Server holds the REST handlers
type Server struct {
	deps Deps
	log  zerolog.Logger
}

// NewServer creates the REST handlers
func NewServer(deps Deps) *Server {
	return &Server{deps: deps, log: logging.Component("api")}
}

// Mount registers every route on mux
func (s *Server) Mount(mux goahttp.Muxer) {
	mux.Handle(http.MethodPost, "/api/auth/login", s.login)
	mux.Handle(http.MethodGet, "/api/auth/profile", s.protected(s.profile))
	mux.Handle(http.MethodGet, "/api/events", s.protected(s.listEvents))
	mux.Handle(http.MethodGet, "/api/test_videos", s.protected(s.listTestVideos))
	mux.Handle(http.MethodGet, "/api/models", s.protected(s.listModels))
	mux.Handle(http.MethodGet, "/api/default-model", s.protected(s.getDefaultModel))
	mux.Handle(http.MethodPost, "/api/default-model", s.adminOnly(s.setDefaultModel))
	mux.Handle(http.MethodGet, "/health", s.health)
}

// protected rejects requests whose token does not validate
func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := middleware.Authorize(s.deps.Login, r, s.deps.RequireToken)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token has expired"
			}
			s.encode(w, r, http.StatusUnauthorized, errorBody{Error: msg})
			return
		}
		if claims != nil {
			r = r.WithContext(context.WithValue(r.Context(), middleware.UserContextKey, claims))
		}
		next(w, r)
	}
}

// adminOnly additionally requires the admin role when a user is known
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return s.protected(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.GetUserFromContext(r.Context())
		if claims == nil && s.deps.RequireToken {
			s.encode(w, r, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}
		if claims != nil && !strings.EqualFold(claims.Role, "admin") {
			s.encode(w, r, http.StatusForbidden, errorBody{Error: "admin role required"})
			return
		}
		next(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

// encode writes v with the content type goa negotiates from the request
func (s *Server) encode(w http.ResponseWriter, r *http.Request, status int, v any) {
	enc := goahttp.ResponseEncoder(r.Context(), w)
	w.WriteHeader(status)
	if err := enc.Encode(v); err != nil {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to encode response")
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	s.encode(w, r, http.StatusInternalServerError, errorBody{Error: msg})
}

func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}
