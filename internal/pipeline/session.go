package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/overlay"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/recorder"
)

// SessionOptions configures one stream session
type SessionOptions struct {
	ClientID string
	Key      StreamKey
	Model    string

	Source     *DualSource
	Detector   Detector // nil forwards frames without overlays
	Thresholds Thresholds
	Viewer     Viewer

	// Recorder is set for live sessions only; test videos never persist events
	Recorder *recorder.Recorder
	// Playback is set for test-video sessions only
	Playback *PlaybackController

	// FPS is the target output rate: the live rate, or the base rate scaled by playback speed
	FPS         float64
	JPEGQuality int
	Clock       clock.Clock

	// Stopping is polled at the top of every iteration
	Stopping func() bool
}

// Session is the per-stream frame loop. Its source, buffer and recorder are
// touched only from the goroutine running Run.
type Session struct {
	opts  SessionOptions
	clock clock.Clock
	log   zerolog.Logger

	frames uint64
}

// NewSession creates a session; call Run to start the loop
func NewSession(opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	return &Session{
		opts:  opts,
		clock: opts.Clock,
		log: logging.Component("session").With().
			Str("client_id", opts.ClientID).
			Str("stream_key", string(opts.Key)).
			Str("model", opts.Model).
			Logger(),
	}
}

// Run drives the loop until ctx is cancelled, the registry shuts down, or a
// live source stops. Capture handles are released and any in-flight recording
// is flushed before it returns.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info().Bool("live", s.opts.Source.Live()).Bool("thermal", s.opts.Source.HasThermal()).
		Float64("fps", s.opts.FPS).Msg("session started")
	defer s.close()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.opts.Stopping != nil && s.opts.Stopping() {
			s.log.Info().Msg("shutdown requested, leaving loop")
			return nil
		}

		started := s.clock.Now()
		wait, err := s.step(ctx)
		if err != nil {
			return err
		}
		if wait == 0 {
			wait = s.interval() - s.clock.Since(started)
		}
		if wait > 0 && !s.sleep(ctx, wait) {
			return nil
		}
	}
}

// step performs one iteration and returns how long to wait before the next
// one; zero means pace at the target rate.
func (s *Session) step(ctx context.Context) (time.Duration, error) {
	src := s.opts.Source

	if pb := s.opts.Playback; pb != nil {
		if t, ok := pb.TakeSeek(); ok {
			index, err := src.SeekToTime(t)
			if err != nil {
				s.log.Warn().Err(err).Float64("time", t).Msg("seek failed")
			} else {
				s.log.Debug().Float64("time", t).Int("frame", index).Msg("seek applied")
			}
		}
		if pb.Paused() {
			return pauseWait, nil
		}
	}

	visual, thermal, ok := src.Read()
	if !ok {
		if src.Live() {
			return 0, ErrSourceEnded
		}
		if err := src.ResetToStart(); err != nil {
			return 0, fmt.Errorf("failed to rewind test video: %w", err)
		}
		return 0, nil
	}

	f := &frame.Frame{
		Visual:    visual,
		Thermal:   thermal,
		Timestamp: s.clock.Now(),
		Position:  src.Position() - 1,
	}
	if src.Live() {
		f.Position = -1
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.Push(f)
	}

	var dets []frame.Detection
	if s.opts.Detector != nil {
		var err error
		dets, err = s.opts.Detector.Detect(ctx, visual, thermal)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil
			}
			s.log.Warn().Err(err).Msg("detection failed, forwarding frame without overlays")
			dets = nil
		}
	}

	trigger, person := s.opts.Thresholds.Evaluate(dets)
	shown := s.opts.Thresholds.Overlays(dets)
	annotated := overlay.Annotate(visual, shown)

	if trigger != nil && s.opts.Recorder != nil {
		s.trigger(ctx, *trigger, f, annotated)
	}

	payload, err := s.payload(annotated, overlay.Annotate(frame.GrayToRGBA(thermal), shown), person)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode frame")
		return 0, nil
	}
	s.opts.Viewer.SendFrame(payload)

	s.frames++
	if s.frames%500 == 0 {
		s.log.Debug().Uint64("frames", s.frames).Msg("streaming")
	}
	return 0, nil
}

func (s *Session) trigger(ctx context.Context, det frame.Detection, f *frame.Frame, annotated *image.RGBA) {
	out, err := s.opts.Recorder.Trigger(ctx, det, f, annotated)
	switch out {
	case recorder.Recorded:
		// logged by the recorder
	case recorder.PersistFailed:
		s.log.Error().Err(err).Str("object", det.Class).Msg("failed to persist event, stream continues")
	default:
		s.log.Debug().Str("outcome", out.String()).Str("object", det.Class).
			Float64("confidence", det.Confidence).Msg("trigger skipped")
	}
}

func (s *Session) payload(visual, thermal *image.RGBA, person bool) (*FramePayload, error) {
	rgb, err := overlay.EncodeBase64JPEG(visual, s.opts.JPEGQuality)
	if err != nil {
		return nil, err
	}
	tir, err := overlay.EncodeBase64JPEG(thermal, s.opts.JPEGQuality)
	if err != nil {
		return nil, err
	}
	p := &FramePayload{
		RGB:            rgb,
		TIR:            tir,
		CameraID:       s.opts.Key.wireID(),
		PersonDetected: person,
	}
	if s.opts.Playback != nil {
		p.PlaybackInfo = s.opts.Source.Playback()
	}
	return p, nil
}

// interval is the pacing period at the current effective rate
func (s *Session) interval() time.Duration {
	fps := s.opts.FPS
	if s.opts.Playback != nil {
		fps *= s.opts.Playback.Rate()
	}
	return time.Duration(float64(time.Second) / fps)
}

// sleep waits for d or until ctx is done; it returns false on cancellation
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	t := s.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Session) close() {
	if s.opts.Recorder != nil {
		s.opts.Recorder.Close()
	}
	if err := s.opts.Source.Release(); err != nil {
		s.log.Warn().Err(err).Msg("failed to release source")
	}
	s.log.Info().Uint64("frames", s.frames).Msg("session stopped")
}
