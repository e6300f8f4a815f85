package api

import (
	"errors"
	"net/http"

	goahttp "goa.design/goa/v3/http"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/auth"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/detection"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/media"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/middleware"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/services"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := goahttp.RequestDecoder(r).Decode(&req); err != nil {
		s.encode(w, r, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	token, exp, err := s.deps.Login.Authenticate(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.encode(w, r, http.StatusUnauthorized, map[string]string{"msg": "Invalid username or password."})
		return
	case err != nil:
		s.internalError(w, r, err, "failed to authenticate")
		return
	}

	s.log.Info().Str("username", req.Username).Msg("user logged in")
	s.encode(w, r, http.StatusOK, loginResponse{AccessToken: token, ExpiresAt: exp})
}

type profileResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		s.encode(w, r, http.StatusNotFound, map[string]string{"msg": "User not found."})
		return
	}
	s.encode(w, r, http.StatusOK, profileResponse{ID: claims.UserID, Username: claims.Username, Role: claims.Role})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	events, err := s.deps.Events.ListRecentEvents(ctx, recentEvents)
	if err != nil {
		s.internalError(w, r, err, "failed to list events")
		return
	}
	if events == nil {
		events = []*database.EventView{}
	}
	s.encode(w, r, http.StatusOK, events)
}

func (s *Server) listTestVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.deps.Library.List()
	if err != nil {
		s.internalError(w, r, err, "failed to load video list")
		return
	}
	s.encode(w, r, http.StatusOK, videos)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := detection.ListModels(s.deps.ModelsDir)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read models directory, offering defaults")
		models = detection.DefaultModels
	}
	s.encode(w, r, http.StatusOK, models)
}

type defaultModelResponse struct {
	DefaultModel string `json:"default_model"`
}

type setDefaultModelRequest struct {
	Model string `json:"model"`
}

func (s *Server) getDefaultModel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	model, err := s.deps.Settings.GetConfig(ctx, services.DefaultModelKey)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read default model")
	}
	if model == "" {
		model = s.deps.DefaultModel
	}
	s.encode(w, r, http.StatusOK, defaultModelResponse{DefaultModel: model})
}

func (s *Server) setDefaultModel(w http.ResponseWriter, r *http.Request) {
	var req setDefaultModelRequest
	if err := goahttp.RequestDecoder(r).Decode(&req); err != nil {
		s.encode(w, r, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.Model == "" {
		s.encode(w, r, http.StatusBadRequest, errorBody{Error: "Model name is required."})
		return
	}
	if err := media.ValidateFilename(req.Model); err != nil {
		s.encode(w, r, http.StatusBadRequest, errorBody{Error: "Invalid model name."})
		return
	}

	ctx, cancel := withTimeout(r)
	defer cancel()
	if err := s.deps.Settings.SaveConfig(ctx, services.DefaultModelKey, req.Model); err != nil {
		s.internalError(w, r, err, "failed to save default model")
		return
	}

	s.log.Info().Str("model", req.Model).Msg("default model updated")
	s.encode(w, r, http.StatusOK, messageBody{Message: "Default model set to " + req.Model + "."})
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Detector string `json:"detector"`
	Sessions int    `json:"sessions"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Detector: "disabled"}
	status := http.StatusOK

	if err := s.deps.DB.Ping(ctx); err != nil {
		resp.Database = err.Error()
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	if s.deps.Engine != nil {
		if err := s.deps.Engine.Health(ctx, s.deps.DefaultModel); err != nil {
			resp.Detector = err.Error()
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		} else {
			resp.Detector = "ok"
		}
	}
	if s.deps.Sessions != nil {
		resp.Sessions = s.deps.Sessions.Count()
	}

	s.encode(w, r, status, resp)
}
