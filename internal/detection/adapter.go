package detection

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
)

// Adapter is a Detector bound to one model
type Adapter struct {
	engine Engine
	model  string
}

var _ pipeline.Detector = (*Adapter)(nil)

// NewAdapter binds engine to model
func NewAdapter(engine Engine, model string) *Adapter {
	return &Adapter{engine: engine, model: model}
}

// Model returns the bound model name
func (a *Adapter) Model() string { return a.model }

// Detect fuses the channels and runs one inference call. It applies no thresholds.
// The engine always receives four channels; a missing thermal image is
// synthesized from the visual frame.
func (a *Adapter) Detect(ctx context.Context, visual *image.RGBA, thermal *image.Gray) ([]frame.Detection, error) {
	if thermal == nil && visual != nil {
		thermal = frame.ToGray(visual)
	}
	in, err := Fuse(visual, thermal)
	if err != nil {
		return nil, fmt.Errorf("failed to fuse channels: %w", err)
	}
	return a.engine.Infer(ctx, a.model, in)
}

// Resolver picks the model a session runs with
type Resolver struct {
	engine   Engine
	required bool
	log      zerolog.Logger
}

// NewResolver creates a resolver. engine may be nil when no endpoint is configured.
// When required is set, sessions fail to start without a serving engine.
func NewResolver(engine Engine, required bool) *Resolver {
	return &Resolver{engine: engine, required: required, log: logging.Component("detection")}
}

// Resolve binds a detector for requested, falling back to defaultModel when the
// engine does not serve the requested model. An empty request means the default.
// The returned Adapter is nil when sessions should run without detection.
func (r *Resolver) Resolve(ctx context.Context, requested, defaultModel string) (a *Adapter, fellBack bool, err error) {
	model := requested
	if model == "" {
		model = defaultModel
	}
	if r.engine == nil {
		if r.required {
			return nil, false, ErrEngineUnavailable
		}
		return nil, false, nil
	}

	err = r.engine.Health(ctx, model)
	if errors.Is(err, ErrModelUnavailable) && model != defaultModel && defaultModel != "" {
		r.log.Warn().Str("model", model).Str("fallback", defaultModel).Msg("model unavailable, using default")
		model, fellBack = defaultModel, true
		err = r.engine.Health(ctx, model)
	}

	switch {
	case err == nil:
		return NewAdapter(r.engine, model), fellBack, nil
	case r.required:
		return nil, false, fmt.Errorf("failed to bind model %s: %w", model, err)
	default:
		// Keep the adapter; per-frame failures are logged and frames pass through.
		r.log.Warn().Err(err).Str("model", model).Msg("engine not healthy, continuing without guarantees")
		return NewAdapter(r.engine, model), fellBack, nil
	}
}
