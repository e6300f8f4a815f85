package pipeline

import (
	"context"
	"image"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

// FrameSource is a capture handle. It is owned by exactly one session loop;
// nothing else may call Read on it.
type FrameSource interface {
	// Read returns the next frame; ok=false means end of stream or a read failure
	Read() (img *image.RGBA, ok bool)

	// Release frees the underlying capture handle
	Release() error
}

// FileSource is a seekable, file-backed FrameSource
type FileSource interface {
	FrameSource

	// SeekToFrame positions the source so the next Read returns frame index
	SeekToFrame(index int) error

	// ResetToStart rewinds to the first frame
	ResetToStart() error

	// FrameRate is the native frame rate; zero when the container does not report one
	FrameRate() float64

	// FrameCount is the total number of frames
	FrameCount() int

	// Position is the index of the frame the next Read will return
	Position() int
}

// SourceOpener opens capture handles by identifier
type SourceOpener interface {
	// OpenLive opens a camera device index or stream URL, trying each capture backend in order
	OpenLive(ctx context.Context, source string) (FrameSource, error)

	// OpenFile opens a video file
	OpenFile(path string) (FileSource, error)
}

// Detector runs inference on one visual+thermal pair. It applies no thresholds;
// an empty result is not an error.
type Detector interface {
	Detect(ctx context.Context, visual *image.RGBA, thermal *image.Gray) ([]frame.Detection, error)
}

// Viewer receives the output of one session
type Viewer interface {
	// SendFrame queues a frame for the client; it never blocks the session loop
	SendFrame(p *FramePayload) bool

	// SendError reports a session error to this client only
	SendError(msg string)
}
