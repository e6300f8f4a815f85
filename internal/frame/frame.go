// Package frame holds the image types shared by capture, detection,
// recording and overlay code.
package frame

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one captured visual image with its thermal companion.
// Frames are never mutated once captured; overlay code draws on copies.
type Frame struct {
	Visual    *image.RGBA
	Thermal   *image.Gray
	Timestamp time.Time
	// Position is the zero-based frame index for file sources, -1 for live sources
	Position int
}

// Detection is one object found by the inference engine
type Detection struct {
	Class      string
	Confidence float64
	Box        image.Rectangle
}

// ToRGBA converts any image into a tightly packed RGBA image
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// ToGray is the fixed transform used to synthesize a thermal channel
// from a visual frame (ITU-R BT.601 luma, same weights as OpenCV's BGR2GRAY).
func ToGray(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		dst := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		for x := range dst {
			r := uint32(src[x*4])
			g := uint32(src[x*4+1])
			bl := uint32(src[x*4+2])
			// 0.299, 0.587, 0.114 in 16.16 fixed point
			dst[x] = uint8((19595*r + 38470*g + 7471*bl + 1<<15) >> 16)
		}
	}
	return gray
}

// GrayToRGBA expands a single channel image into RGBA for drawing and encoding
func GrayToRGBA(g *image.Gray) *image.RGBA {
	b := g.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		dst := rgba.Pix[y*rgba.Stride : y*rgba.Stride+b.Dx()*4]
		for x, v := range src {
			dst[x*4] = v
			dst[x*4+1] = v
			dst[x*4+2] = v
			dst[x*4+3] = 0xff
		}
	}
	return rgba
}

// Clone returns a deep copy of an RGBA image
func Clone(img *image.RGBA) *image.RGBA {
	c := &image.RGBA{
		Pix:    make([]uint8, len(img.Pix)),
		Stride: img.Stride,
		Rect:   img.Rect,
	}
	copy(c.Pix, img.Pix)
	return c
}
