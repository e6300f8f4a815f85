// Package services maps websocket commands onto stream sessions.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/config"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/detection"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/media"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/recorder"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/ws"
)

// DefaultModelKey is the app_config key holding the default model name
const DefaultModelKey = "default_model"

// CameraStore resolves camera ids to capture sources
type CameraStore interface {
	GetCamera(ctx context.Context, id int64) (*database.CameraRecord, error)
	EnsureCamera(ctx context.Context, id int64, source string) (*database.CameraRecord, error)
}

// SettingsStore reads persisted application settings
type SettingsStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

// StreamDeps are the collaborators of the stream service
type StreamDeps struct {
	Opener   pipeline.SourceOpener
	Resolver *detection.Resolver
	Cameras  CameraStore
	Settings SettingsStore
	Library  *media.Library
	Recorder recorder.Deps
	Clock    clock.Clock
}

// StreamService handles the stream commands of every websocket client
type StreamService struct {
	deps         StreamDeps
	cfg          config.RecordingConfig
	recordDir    string
	defaultModel string
	registry     *pipeline.SessionRegistry

	peersMu sync.RWMutex
	peers   map[string]ws.Peer

	log zerolog.Logger
}

var _ ws.Dispatcher = (*StreamService)(nil)

// NewStreamService creates the service and its session registry
func NewStreamService(deps StreamDeps, cfg *config.Config) *StreamService {
	s := &StreamService{
		deps:         deps,
		cfg:          cfg.Recording,
		recordDir:    cfg.RecordDir,
		defaultModel: cfg.Detection.DefaultModel,
		peers:        make(map[string]ws.Peer),
		log:          logging.Component("streams"),
	}
	s.registry = pipeline.NewSessionRegistry(s.sessionExited)
	return s
}

// Registry returns the session registry, used for shutdown
func (s *StreamService) Registry() *pipeline.SessionRegistry {
	return s.registry
}

// Dispatch routes one inbound command
func (s *StreamService) Dispatch(ctx context.Context, p ws.Peer, event string, data json.RawMessage) {
	s.peersMu.Lock()
	s.peers[p.ID()] = p
	s.peersMu.Unlock()

	var err error
	switch event {
	case ws.EventStartStream:
		var req ws.StartStreamRequest
		if err = decode(data, &req); err == nil {
			s.startStream(ctx, p, &req)
		}
	case ws.EventStopStream:
		var req ws.StopStreamRequest
		if err = decode(data, &req); err == nil {
			s.stopStream(p, &req)
		}
	case ws.EventStartTestStream:
		var req ws.StartTestStreamRequest
		if err = decode(data, &req); err == nil {
			s.startTestStream(ctx, p, &req)
		}
	case ws.EventStopTestStream:
		s.stopTestStream(p)
	case ws.EventTestVideoControl:
		var req ws.TestVideoControlRequest
		if err = decode(data, &req); err == nil {
			s.testVideoControl(p, &req)
		}
	default:
		p.SendError(fmt.Sprintf("Unknown event: %s", event))
		return
	}
	if err != nil {
		p.SendError(fmt.Sprintf("Invalid %s payload.", event))
	}
}

// Disconnect cancels every session of a departing client
func (s *StreamService) Disconnect(p ws.Peer) {
	s.peersMu.Lock()
	delete(s.peers, p.ID())
	s.peersMu.Unlock()

	if n := s.registry.DisconnectClient(p.ID()); n > 0 {
		s.log.Info().Str("client_id", p.ID()).Int("sessions", n).Msg("client sessions cancelled")
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (s *StreamService) startStream(ctx context.Context, p ws.Peer, req *ws.StartStreamRequest) {
	if req.CameraID <= 0 {
		p.SendError("Camera ID is required.")
		return
	}
	key := pipeline.LiveKey(req.CameraID)
	log := s.log.With().Str("client_id", p.ID()).Int64("camera_id", req.CameraID).Logger()

	if s.registry.Running(p.ID(), key) {
		log.Warn().Msg("camera already streaming for this client")
		return
	}

	det, model, ok := s.bindModel(ctx, p, req.Model)
	if !ok {
		return
	}

	cam, err := s.deps.Cameras.GetCamera(ctx, req.CameraID)
	if err != nil {
		log.Error().Err(err).Msg("failed to look up camera")
	}
	source := CameraSource(req.CameraID, cam)
	if cam == nil {
		if _, err := s.deps.Cameras.EnsureCamera(ctx, req.CameraID, source); err != nil {
			log.Error().Err(err).Msg("failed to register camera")
		}
	}

	userID := req.UserID
	if userID == nil {
		if id, ok := p.UserID(); ok {
			userID = &id
		}
	}

	settings := recorder.Settings{
		PreWindow:  config.Seconds(s.cfg.PreWindowS),
		PostWindow: config.Seconds(s.cfg.PostWindowS),
		Cooldown:   config.Seconds(s.cfg.CooldownS),
		RecordDir:  s.recordDir,
	}

	cameraID := req.CameraID
	run := func(ctx context.Context) error {
		src, err := s.deps.Opener.OpenLive(ctx, source)
		if err != nil {
			return fmt.Errorf("%w: camera %d (%s): %v", pipeline.ErrSourceOpen, cameraID, source, err)
		}
		p.SendResponse(fmt.Sprintf("Camera %d streaming started.", cameraID))
		rec := recorder.New(s.deps.Recorder, settings, cameraID, userID)
		return pipeline.NewSession(pipeline.SessionOptions{
			ClientID:    p.ID(),
			Key:         key,
			Model:       model,
			Source:      pipeline.NewLiveSource(src),
			Detector:    det,
			Thresholds:  s.thresholds(),
			Viewer:      p,
			Recorder:    rec,
			FPS:         s.cfg.LiveFPS,
			JPEGQuality: s.cfg.JPEGQuality,
			Clock:       s.deps.Clock,
			Stopping:    s.registry.ShuttingDown,
		}).Run(ctx)
	}

	if err := s.registry.Start(p.ID(), key, nil, run); err != nil {
		if errors.Is(err, pipeline.ErrDuplicateSession) {
			log.Warn().Msg("camera already streaming for this client")
			return
		}
		p.SendError(fmt.Sprintf("Failed to start camera %d: %v", cameraID, err))
		return
	}
	log.Info().Str("model", model).Str("source", source).
		Bool("multi_spectral", detection.IsMultiSpectral(model)).Msg("live stream starting")
}

func (s *StreamService) stopStream(p ws.Peer, req *ws.StopStreamRequest) {
	if req.CameraID <= 0 {
		return
	}
	if !s.registry.Stop(p.ID(), pipeline.LiveKey(req.CameraID)) {
		s.log.Warn().Str("client_id", p.ID()).Int64("camera_id", req.CameraID).Msg("no stream to stop")
		return
	}
	p.SendResponse(fmt.Sprintf("Camera %d streaming stopped.", req.CameraID))
}

func (s *StreamService) startTestStream(ctx context.Context, p ws.Peer, req *ws.StartTestStreamRequest) {
	if req.RGBFilename == "" {
		p.SendError("RGB video filename is required.")
		return
	}
	for _, name := range []string{req.RGBFilename, req.TIRFilename} {
		if name == "" {
			continue
		}
		if err := media.ValidateFilename(name); err != nil {
			p.SendError("Invalid filename.")
			return
		}
	}

	rgbPath, err := s.deps.Library.Resolve(req.RGBFilename)
	if err != nil {
		p.SendError(fmt.Sprintf("RGB video '%s' not found.", req.RGBFilename))
		return
	}
	var tirPath string
	if req.TIRFilename != "" {
		if tirPath, err = s.deps.Library.Resolve(req.TIRFilename); err != nil {
			p.SendError(fmt.Sprintf("TIR video '%s' not found.", req.TIRFilename))
			return
		}
	}

	det, model, ok := s.bindModel(ctx, p, req.Model)
	if !ok {
		return
	}

	playback := pipeline.NewPlaybackController()
	run := func(ctx context.Context) error {
		visual, err := s.deps.Opener.OpenFile(rgbPath)
		if err != nil {
			return fmt.Errorf("%w: RGB file cannot be opened: %v", pipeline.ErrSourceOpen, err)
		}
		var source *pipeline.DualSource
		if tirPath != "" {
			thermal, err := s.deps.Opener.OpenFile(tirPath)
			if err != nil {
				visual.Release()
				return fmt.Errorf("%w: TIR file cannot be opened: %v", pipeline.ErrSourceOpen, err)
			}
			source = pipeline.NewFileSource(visual, thermal)
		} else {
			source = pipeline.NewFileSource(visual, nil)
		}

		return pipeline.NewSession(pipeline.SessionOptions{
			ClientID:    p.ID(),
			Key:         pipeline.TestVideoKey,
			Model:       model,
			Source:      source,
			Detector:    det,
			Thresholds:  s.thresholds(),
			Viewer:      p,
			Playback:    playback,
			FPS:         s.cfg.TestBaseFPS,
			JPEGQuality: s.cfg.JPEGQuality,
			Clock:       s.deps.Clock,
			Stopping:    s.registry.ShuttingDown,
		}).Run(ctx)
	}

	wait := config.Seconds(s.cfg.ReplaceWaitS)
	if err := s.registry.StartOrReplace(p.ID(), pipeline.TestVideoKey, playback, run, wait); err != nil {
		p.SendError(fmt.Sprintf("Failed to start test video: %v", err))
		return
	}

	s.log.Info().Str("client_id", p.ID()).Str("rgb", req.RGBFilename).Str("tir", req.TIRFilename).
		Str("model", model).Msg("test stream started")
	p.SendResponse(fmt.Sprintf("Starting multi-spectral analysis. (RGB: %s, TIR: %s, Model: %s)",
		req.RGBFilename, req.TIRFilename, model))
}

func (s *StreamService) stopTestStream(p ws.Peer) {
	if !s.registry.Stop(p.ID(), pipeline.TestVideoKey) {
		s.log.Warn().Str("client_id", p.ID()).Msg("no test video to stop")
		return
	}
	p.SendResponse("Test video analysis stopped.")
}

func (s *StreamService) testVideoControl(p ws.Peer, req *ws.TestVideoControlRequest) {
	playback, ok := s.registry.Playback(p.ID(), pipeline.TestVideoKey)
	if !ok {
		p.SendError("No test video is playing.")
		return
	}

	t, rate := 0.0, 1.0
	if req.Time != nil {
		t = *req.Time
	}
	if req.Rate != nil {
		rate = *req.Rate
	}
	if err := playback.Apply(req.Action, t, rate); err != nil {
		p.SendError(fmt.Sprintf("Video control failed: %v", err))
		return
	}
	p.SendResponse(fmt.Sprintf("Video control applied: %s", req.Action))
}

// bindModel resolves the session's detector, reporting failures and fallbacks to the client
func (s *StreamService) bindModel(ctx context.Context, p ws.Peer, requested string) (pipeline.Detector, string, bool) {
	def := s.currentDefaultModel(ctx)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	adapter, fellBack, err := s.deps.Resolver.Resolve(ctx, requested, def)
	if err != nil {
		p.SendError(fmt.Sprintf("Detection engine unavailable: %v", err))
		return nil, "", false
	}

	model := requested
	if model == "" {
		model = def
	}
	if adapter == nil {
		return nil, model, true
	}
	if fellBack {
		p.SendError(fmt.Sprintf("Model '%s' is unavailable, using default model '%s'.", requested, adapter.Model()))
	}
	return adapter, adapter.Model(), true
}

func (s *StreamService) currentDefaultModel(ctx context.Context) string {
	if s.deps.Settings != nil {
		v, err := s.deps.Settings.GetConfig(ctx, DefaultModelKey)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to read default model, using configured one")
		}
		if v != "" {
			return v
		}
	}
	return s.defaultModel
}

func (s *StreamService) thresholds() pipeline.Thresholds {
	return pipeline.Thresholds{
		Person:        s.cfg.PersonThreshold,
		Animal:        s.cfg.AnimalThreshold,
		Overlay:       s.cfg.OverlayThreshold,
		AnimalClasses: s.cfg.AnimalClasses,
	}
}

// sessionExited reports abnormal session ends to the owning client
func (s *StreamService) sessionExited(clientID string, key pipeline.StreamKey, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.peersMu.RLock()
	p, ok := s.peers[clientID]
	s.peersMu.RUnlock()
	if !ok {
		return
	}

	if errors.Is(err, pipeline.ErrSourceEnded) {
		p.SendError(fmt.Sprintf("Camera %s stream ended.", key))
		return
	}
	p.SendError(err.Error())
}

// CameraSource returns the capture source for a camera: the configured
// source column when present, otherwise the device index id-1.
func CameraSource(id int64, cam *database.CameraRecord) string {
	if cam != nil && cam.Source != "" {
		return cam.Source
	}
	if id <= 1 {
		return "0"
	}
	return strconv.FormatInt(id-1, 10)
}
