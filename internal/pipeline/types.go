package pipeline

import (
	"errors"
	"strconv"
	"time"
)

// StreamKey distinguishes the concurrent sessions of one client: a camera id
// or TestVideoKey for the single test-video session.
type StreamKey string

// TestVideoKey is the sentinel key for file-backed sessions
const TestVideoKey StreamKey = "test_video"

// LiveKey returns the stream key for a camera
func LiveKey(cameraID int64) StreamKey {
	return StreamKey(strconv.FormatInt(cameraID, 10))
}

// wireID is the value sent as camera_id: the number for cameras, the sentinel string otherwise
func (k StreamKey) wireID() any {
	if id, err := strconv.ParseInt(string(k), 10, 64); err == nil {
		return id
	}
	return string(k)
}

const (
	// pauseWait is how long a paused session sleeps before re-checking its state
	pauseWait = 100 * time.Millisecond

	// defaultSeekFPS is used to translate seek times when a file reports no frame rate
	defaultSeekFPS = 30.0

	ClassPerson = "person"
)

var (
	ErrSourceOpen       = errors.New("failed to open video source")
	ErrSourceEnded      = errors.New("live source stopped delivering frames")
	ErrDuplicateSession = errors.New("stream already running for this client")
	ErrShuttingDown     = errors.New("server is shutting down")
	ErrReplaceTimeout   = errors.New("previous session did not stop in time")
	ErrUnknownAction    = errors.New("unknown playback action")
	ErrInvalidRate      = errors.New("playback rate must be positive")
)

// PlaybackInfo is the position data attached to test-video frames
type PlaybackInfo struct {
	CurrentTime  float64 `json:"current_time"`
	Duration     float64 `json:"duration"`
	CurrentFrame int     `json:"current_frame"`
	TotalFrames  int     `json:"total_frames"`
}

// FramePayload is one annotated frame pushed to the viewer
type FramePayload struct {
	RGB            string `json:"rgb"`
	TIR            string `json:"tir"`
	CameraID       any    `json:"camera_id"`
	PersonDetected bool   `json:"person_detected"`
	*PlaybackInfo
}
