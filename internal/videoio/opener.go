package videoio

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/mjpeg"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
)

type backend struct {
	name string
	api  gocv.VideoCaptureAPI
}

// deviceBackends lists capture APIs to try for a local device, platform
// specific first. Some devices only initialise under a non-default API.
func deviceBackends(goos string) []backend {
	switch goos {
	case "windows":
		return []backend{{"dshow", gocv.VideoCaptureDshow}, {"msmf", gocv.VideoCaptureMSMF}, {"any", gocv.VideoCaptureAny}}
	case "darwin":
		return []backend{{"avfoundation", gocv.VideoCaptureAVFoundation}, {"any", gocv.VideoCaptureAny}}
	default:
		return []backend{{"v4l2", gocv.VideoCaptureV4L2}, {"any", gocv.VideoCaptureAny}}
	}
}

// parseDevice returns the device index for a numeric source
func parseDevice(source string) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(source))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// Opener opens live and file captures
type Opener struct {
	// FFmpegFPS is the output rate requested from ffmpeg for network streams
	FFmpegFPS int
	log       zerolog.Logger
}

// NewOpener creates an opener
func NewOpener(ffmpegFPS int) *Opener {
	return &Opener{FFmpegFPS: ffmpegFPS, log: logging.Component("videoio")}
}

// OpenLive opens a device index or stream URL. Device indexes try each
// backend in order; URLs go through OpenCV first, then an ffmpeg pipe.
func (o *Opener) OpenLive(ctx context.Context, source string) (pipeline.FrameSource, error) {
	var attempts []string

	if idx, ok := parseDevice(source); ok {
		for _, b := range deviceBackends(runtime.GOOS) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			vc, err := gocv.OpenVideoCaptureWithAPI(idx, b.api)
			if err == nil && vc.IsOpened() {
				o.log.Info().Str("source", source).Str("backend", b.name).Msg("camera opened")
				return newCapture(source, vc), nil
			}
			if vc != nil {
				vc.Close()
			}
			attempts = append(attempts, fmt.Sprintf("%s: %v", b.name, errOrClosed(err)))
			o.log.Debug().Str("source", source).Str("backend", b.name).Msg("backend failed")
		}
		return nil, fmt.Errorf("%w: device %d (%s)", pipeline.ErrSourceOpen, idx, strings.Join(attempts, "; "))
	}

	if mjpeg.IsSnapshotURL(source) {
		o.log.Info().Str("source", source).Msg("polling snapshot endpoint")
		return mjpeg.NewSnapshotPoller(source, nil), nil
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err == nil && vc.IsOpened() {
		o.log.Info().Str("source", source).Str("backend", "opencv").Msg("stream opened")
		return newCapture(source, vc), nil
	}
	if vc != nil {
		vc.Close()
	}
	attempts = append(attempts, fmt.Sprintf("opencv: %v", errOrClosed(err)))

	r, err := mjpeg.OpenFFmpeg(ctx, source, o.FFmpegFPS)
	if err == nil {
		return r, nil
	}
	attempts = append(attempts, fmt.Sprintf("ffmpeg: %v", err))
	return nil, fmt.Errorf("%w: %s (%s)", pipeline.ErrSourceOpen, source, strings.Join(attempts, "; "))
}

// OpenFile opens a video file for seekable reading
func (o *Opener) OpenFile(path string) (pipeline.FileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceOpen, err)
	}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pipeline.ErrSourceOpen, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", pipeline.ErrSourceOpen, path)
	}
	c := newCapture(path, vc)
	o.log.Info().Str("path", path).Float64("fps", c.FrameRate()).Int("frames", c.FrameCount()).Msg("video file opened")
	return c, nil
}

func errOrClosed(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("not opened")
}

var _ pipeline.SourceOpener = (*Opener)(nil)
