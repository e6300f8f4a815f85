// Package mjpeg reads network camera streams as sequences of JPEG images,
// either from an ffmpeg image2pipe process or by polling a snapshot URL.
package mjpeg

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

const (
	chunkSize = 8192
	// maxBuffered bounds the bytes held while looking for an end marker
	maxBuffered = 16 << 20
)

// Reader splits a byte stream of concatenated JPEGs into decoded frames
type Reader struct {
	src     io.Reader
	buf     []byte
	chunk   []byte
	closeFn func() error
	log     zerolog.Logger
}

// NewReader wraps r; closeFn, if not nil, is called by Release
func NewReader(r io.Reader, closeFn func() error) *Reader {
	return &Reader{
		src:     r,
		buf:     make([]byte, 0, 1<<20),
		chunk:   make([]byte, chunkSize),
		closeFn: closeFn,
		log:     logging.Component("mjpeg"),
	}
}

// Next returns the next complete JPEG image in the stream
func (r *Reader) Next() ([]byte, error) {
	for {
		img, rest := extractJPEG(r.buf)
		r.buf = append(r.buf[:0], rest...)
		if img != nil {
			return img, nil
		}
		if len(r.buf) > maxBuffered {
			// no end marker in sight, resync on the next start marker
			r.buf = r.buf[:0]
		}

		n, err := r.src.Read(r.chunk)
		r.buf = append(r.buf, r.chunk[:n]...)
		if err != nil {
			if n > 0 && err == io.EOF {
				continue
			}
			return nil, err
		}
	}
}

// Read returns the next decodable frame; corrupt images are skipped
func (r *Reader) Read() (*image.RGBA, bool) {
	for {
		data, err := r.Next()
		if err != nil {
			if err != io.EOF {
				r.log.Warn().Err(err).Msg("stream read failed")
			}
			return nil, false
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			r.log.Debug().Err(err).Int("bytes", len(data)).Msg("skipping undecodable frame")
			continue
		}
		return frame.ToRGBA(img), true
	}
}

// Release stops the underlying stream
func (r *Reader) Release() error {
	if r.closeFn == nil {
		return nil
	}
	return r.closeFn()
}

// extractJPEG returns the first SOI..EOI image in buf and the bytes after it.
// Bytes before the start marker are discarded.
func extractJPEG(buf []byte) (img, rest []byte) {
	start := bytes.Index(buf, soi)
	if start < 0 {
		return nil, buf
	}
	end := bytes.Index(buf[start+2:], eoi)
	if end < 0 {
		return nil, buf[start:]
	}
	end += start + 2 + len(eoi)

	img = make([]byte, end-start)
	copy(img, buf[start:end])
	return img, buf[end:]
}
