package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

var (
	// ErrEngineUnavailable means the inference engine cannot be reached or is not serving
	ErrEngineUnavailable = errors.New("detection engine unavailable")
	// ErrModelUnavailable means the engine is up but does not serve the requested model
	ErrModelUnavailable = errors.New("detection model unavailable")
)

// Engine is a connection to the external inference engine
type Engine interface {
	// Infer runs model on one input tensor
	Infer(ctx context.Context, model string, in *Tensor) ([]frame.Detection, error)

	// Health reports whether the engine serves model
	Health(ctx context.Context, model string) error

	Close() error
}

// wireDetection is one detection as both transports encode it
type wireDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

func (d wireDetection) toFrame() (frame.Detection, error) {
	if len(d.BBox) != 4 {
		return frame.Detection{}, fmt.Errorf("bbox has %d values, want 4", len(d.BBox))
	}
	return frame.Detection{
		Class:      d.Class,
		Confidence: d.Confidence,
		Box: image.Rect(
			int(math.Round(d.BBox[0])), int(math.Round(d.BBox[1])),
			int(math.Round(d.BBox[2])), int(math.Round(d.BBox[3])),
		),
	}, nil
}

func convertDetections(in []wireDetection) ([]frame.Detection, error) {
	out := make([]frame.Detection, 0, len(in))
	for i, d := range in {
		fd, err := d.toFrame()
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		out = append(out, fd)
	}
	return out, nil
}
