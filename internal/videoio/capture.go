// Package videoio adapts OpenCV capture and writer handles (via gocv) to the
// pipeline and recorder interfaces.
package videoio

import (
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
)

// Capture is an OpenCV capture handle; file-backed captures are seekable
type Capture struct {
	name string
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	once sync.Once
}

func newCapture(name string, vc *gocv.VideoCapture) *Capture {
	return &Capture{name: name, vc: vc, mat: gocv.NewMat()}
}

// Read decodes the next frame
func (c *Capture) Read() (*image.RGBA, bool) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, false
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, false
	}
	return frame.ToRGBA(img), true
}

// SeekToFrame positions the capture so the next Read returns index
func (c *Capture) SeekToFrame(index int) error {
	c.vc.Set(gocv.VideoCapturePosFrames, float64(index))
	return nil
}

// ResetToStart rewinds to the first frame
func (c *Capture) ResetToStart() error {
	return c.SeekToFrame(0)
}

func (c *Capture) FrameRate() float64 {
	return c.vc.Get(gocv.VideoCaptureFPS)
}

func (c *Capture) FrameCount() int {
	return int(c.vc.Get(gocv.VideoCaptureFrameCount))
}

func (c *Capture) Position() int {
	return int(c.vc.Get(gocv.VideoCapturePosFrames))
}

// Size reports the capture resolution
func (c *Capture) Size() image.Point {
	return image.Pt(int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight)))
}

// Release closes the handle; it is safe to call more than once
func (c *Capture) Release() error {
	var err error
	c.once.Do(func() {
		c.mat.Close()
		err = c.vc.Close()
	})
	return err
}

var _ pipeline.FileSource = (*Capture)(nil)
