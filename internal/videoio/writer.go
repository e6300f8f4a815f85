package videoio

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/recorder"
)

// WriterFactory opens OpenCV video writers
type WriterFactory struct{}

// Create opens a colour writer; a writer that does not report itself open
// is closed and reported as an error.
func (WriterFactory) Create(path, fourcc string, fps float64, width, height int) (recorder.VideoWriter, error) {
	vw, err := gocv.VideoWriterFile(path, fourcc, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", fourcc, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("%s writer did not open", fourcc)
	}
	return &videoWriter{vw: vw, size: image.Pt(width, height)}, nil
}

type videoWriter struct {
	vw   *gocv.VideoWriter
	size image.Point
}

// Write converts img to a BGR mat, resizing when it does not match the writer size
func (w *videoWriter) Write(img *image.RGBA) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	if img.Bounds().Size() != w.size {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, w.size, 0, 0, gocv.InterpolationLinear)
		return w.vw.Write(resized)
	}
	return w.vw.Write(mat)
}

func (w *videoWriter) Close() error {
	return w.vw.Close()
}

var _ recorder.WriterFactory = WriterFactory{}
