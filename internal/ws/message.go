package ws

import (
	"encoding/json"
)

// Inbound events
const (
	EventStartStream      = "start_stream"
	EventStopStream       = "stop_stream"
	EventStartTestStream  = "start_test_stream"
	EventStopTestStream   = "stop_test_stream"
	EventTestVideoControl = "test_video_control"
)

// Outbound events
const (
	EventVideoFrame = "video_frame"
	EventNewEvent   = "new_event"
	EventError      = "error"
	EventResponse   = "response"
)

// Envelope wraps every message in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StartStreamRequest starts a live camera session
type StartStreamRequest struct {
	CameraID int64  `json:"camera_id"`
	Model    string `json:"model"`
	UserID   *int64 `json:"user_id,omitempty"`
}

// StopStreamRequest stops a live camera session
type StopStreamRequest struct {
	CameraID int64 `json:"camera_id"`
}

// StartTestStreamRequest starts playback of an uploaded test video
type StartTestStreamRequest struct {
	RGBFilename string `json:"rgb_filename"`
	TIRFilename string `json:"tir_filename,omitempty"`
	Model       string `json:"model"`
}

// TestVideoControlRequest changes test-video playback
type TestVideoControlRequest struct {
	Action string   `json:"action"`
	Time   *float64 `json:"time,omitempty"`
	Rate   *float64 `json:"rate,omitempty"`
}

// MessagePayload is the body of error and response messages
type MessagePayload struct {
	Message string `json:"message"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
