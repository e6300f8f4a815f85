// Package detection talks to the external inference engine. It packs the
// visual and thermal channels into the engine's input layout, sends them over
// gRPC or HTTP and turns the reply into frame.Detection values.
package detection

import (
	"fmt"
	"image"
	"strings"
)

// Tensor is a packed HWC uint8 image as the engine expects it.
// Three channels are BGR; four channels are BGR followed by thermal.
// The Adapter always sends four.
type Tensor struct {
	Data     []byte
	Width    int
	Height   int
	Channels int
}

// IsMultiSpectral reports whether a model consumes the fused four channel input
func IsMultiSpectral(model string) bool {
	return strings.Contains(strings.ToLower(model), "fusion")
}

// Fuse packs visual (and thermal, when non-nil) into one tensor.
// The channel order is part of the engine contract.
func Fuse(visual *image.RGBA, thermal *image.Gray) (*Tensor, error) {
	if visual == nil {
		return nil, fmt.Errorf("visual frame is required")
	}
	b := visual.Bounds()
	w, h := b.Dx(), b.Dy()
	channels := 3
	if thermal != nil {
		if tb := thermal.Bounds(); tb.Dx() != w || tb.Dy() != h {
			return nil, fmt.Errorf("thermal frame %dx%d does not match visual %dx%d", tb.Dx(), tb.Dy(), w, h)
		}
		channels = 4
	}

	t := &Tensor{Data: make([]byte, w*h*channels), Width: w, Height: h, Channels: channels}
	for y := 0; y < h; y++ {
		src := visual.Pix[y*visual.Stride:]
		var th []byte
		if thermal != nil {
			th = thermal.Pix[y*thermal.Stride:]
		}
		row := t.Data[y*w*channels:]
		for x := 0; x < w; x++ {
			o := x * channels
			row[o] = src[x*4+2]
			row[o+1] = src[x*4+1]
			row[o+2] = src[x*4]
			if th != nil {
				row[o+3] = th[x]
			}
		}
	}
	return t, nil
}
