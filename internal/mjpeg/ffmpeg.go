package mjpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ffmpegArgs builds an image2pipe command line for a network stream
func ffmpegArgs(url string, fps int) []string {
	var args []string
	if strings.HasPrefix(url, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-loglevel", "error",
		"-i", url,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
	)
	if fps > 0 {
		args = append(args, "-r", strconv.Itoa(fps))
	}
	return append(args, "-q:v", "5", "-")
}

// OpenFFmpeg starts ffmpeg decoding url and returns a reader over its output.
// The process is killed when ctx is done or the reader is released.
func OpenFFmpeg(ctx context.Context, url string, fps int) (*Reader, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(url, fps)...)
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var once sync.Once
	var waitErr error
	r := NewReader(stdout, func() error {
		once.Do(func() {
			cancel()
			waitErr = cmd.Wait()
		})
		if ctx.Err() != nil {
			// killed by us
			return nil
		}
		return waitErr
	})

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.log.Debug().Str("url", url).Msg(scanner.Text())
		}
	}()

	r.log.Info().Str("url", url).Int("pid", cmd.Process.Pid).Msg("ffmpeg capture started")
	return r, nil
}
