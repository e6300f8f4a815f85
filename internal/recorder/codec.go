package recorder

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCodec is returned when no codec candidate could open a writer
var ErrNoCodec = errors.New("no usable video codec")

// Codec is one (encoder, container) candidate
type Codec struct {
	FourCC string
	Ext    string
}

func (c Codec) String() string {
	return c.FourCC + c.Ext
}

// DefaultCodecs is ordered most web-compatible first; MJPG/AVI is the last resort
var DefaultCodecs = []Codec{
	{FourCC: "avc1", Ext: ".mp4"},
	{FourCC: "mp4v", Ext: ".mp4"},
	{FourCC: "XVID", Ext: ".avi"},
	{FourCC: "MJPG", Ext: ".avi"},
}

// VideoWriter receives the frames of one clip
type VideoWriter interface {
	Write(img *image.RGBA) error
	Close() error
}

// WriterFactory opens a writer for a codec; a writer that fails to
// initialise must be reported as an error, never returned half-open.
type WriterFactory interface {
	Create(path, fourcc string, fps float64, width, height int) (VideoWriter, error)
}

// Attempt records the outcome of trying one codec
type Attempt struct {
	Codec Codec
	Path  string
	Err   error
}

// Negotiate tries each codec in order and returns the first writer that opens.
// The returned attempts list every try; the last one is the winner when w != nil.
func Negotiate(factory WriterFactory, basePath string, fps float64, width, height int, codecs []Codec) (VideoWriter, []Attempt) {
	attempts := make([]Attempt, 0, len(codecs))
	stem := strings.TrimSuffix(basePath, filepath.Ext(basePath))

	for _, c := range codecs {
		path := stem + c.Ext
		w, err := factory.Create(path, c.FourCC, fps, width, height)
		attempts = append(attempts, Attempt{Codec: c, Path: path, Err: err})
		if err == nil {
			return w, attempts
		}
		// a failed backend may leave an empty container behind
		if info, statErr := os.Stat(path); statErr == nil && info.Size() == 0 {
			os.Remove(path)
		}
	}
	return nil, attempts
}

// describeAttempts renders failures for logs
func describeAttempts(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		status := "ok"
		if a.Err != nil {
			status = a.Err.Error()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", a.Codec, status))
	}
	return strings.Join(parts, "; ")
}
