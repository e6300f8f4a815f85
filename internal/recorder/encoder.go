package recorder

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/overlay"
)

// Clip is a finalized recording ready to be encoded
type Clip struct {
	EventID  int64
	BasePath string // provisional path; its extension may change during negotiation
	Frames   []*frame.Frame
	FPS      float64
}

// Duration is the wall-clock length the encoded clip plays for
func (c *Clip) Duration() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Frames)) / c.FPS * float64(time.Second))
}

// Encoder writes clips and thumbnails to disk and fixes up file records
type Encoder struct {
	factory WriterFactory
	codecs  []Codec
	store   Store
	quality int
	log     zerolog.Logger
}

// NewEncoder creates an encoder; nil codecs selects DefaultCodecs
func NewEncoder(factory WriterFactory, store Store, codecs []Codec, jpegQuality int) *Encoder {
	if len(codecs) == 0 {
		codecs = DefaultCodecs
	}
	if jpegQuality <= 0 {
		jpegQuality = 85
	}
	return &Encoder{
		factory: factory,
		codecs:  codecs,
		store:   store,
		quality: jpegQuality,
		log:     logging.Component("encoder"),
	}
}

// EncodeClip negotiates a codec, writes every frame and returns the final path
func (e *Encoder) EncodeClip(ctx context.Context, clip *Clip) (string, error) {
	if len(clip.Frames) == 0 {
		return "", fmt.Errorf("clip for event %d has no frames", clip.EventID)
	}
	b := clip.Frames[0].Visual.Bounds()

	if err := os.MkdirAll(filepath.Dir(clip.BasePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}

	w, attempts := Negotiate(e.factory, clip.BasePath, clip.FPS, b.Dx(), b.Dy(), e.codecs)
	if w == nil {
		e.log.Error().Int64("event_id", clip.EventID).Str("attempts", describeAttempts(attempts)).
			Msg("all codecs failed, recording abandoned")
		return "", ErrNoCodec
	}
	chosen := attempts[len(attempts)-1]

	written := 0
	for _, f := range clip.Frames {
		if err := ctx.Err(); err != nil {
			w.Close()
			return "", fmt.Errorf("encoding cancelled after %d frames: %w", written, err)
		}
		if err := w.Write(f.Visual); err != nil {
			w.Close()
			return "", fmt.Errorf("failed to write frame %d: %w", written, err)
		}
		written++
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize video: %w", err)
	}

	final := filepath.Base(chosen.Path)
	if final != filepath.Base(clip.BasePath) {
		if err := e.store.UpdateEventFilePath(ctx, clip.EventID, database.FileTypeVideoRGB, final); err != nil {
			e.log.Error().Err(err).Int64("event_id", clip.EventID).Msg("failed to update recording path")
		}
	}

	e.log.Info().Int64("event_id", clip.EventID).Str("path", chosen.Path).Str("codec", chosen.Codec.String()).
		Int("frames", written).Float64("fps", clip.FPS).Msg("recording saved")
	return chosen.Path, nil
}

// WriteThumbnail stores a JPEG of img and registers it against the event
func (e *Encoder) WriteThumbnail(ctx context.Context, eventID int64, path string, img *image.RGBA) error {
	data, err := overlay.EncodeJPEG(img, e.quality)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return e.store.AddEventFile(ctx, eventID, database.FileTypeThumbnail, filepath.Base(path))
}
