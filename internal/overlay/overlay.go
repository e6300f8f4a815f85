package overlay

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/frame"
)

// Class colours used by the dashboard legend
var (
	ColorPerson  = color.RGBA{255, 0, 0, 255}
	ColorScrofa  = color.RGBA{0, 0, 255, 255}
	ColorInermis = color.RGBA{0, 255, 0, 255}
	ColorOther   = color.RGBA{0, 255, 255, 255}

	labelText = color.RGBA{255, 255, 255, 255}
)

// ClassColor returns the box colour for a class label
func ClassColor(class string) color.RGBA {
	switch class {
	case "person":
		return ColorPerson
	case "scrofa":
		return ColorScrofa
	case "inermis":
		return ColorInermis
	default:
		return ColorOther
	}
}

// Annotate draws detections onto a copy of img
func Annotate(img *image.RGBA, detections []frame.Detection) *image.RGBA {
	out := frame.Clone(img)
	for _, det := range detections {
		c := ClassColor(det.Class)
		r := det.Box
		drawBox(out, r.Min.X, r.Min.Y, r.Dx(), r.Dy(), c, 2)
		drawLabel(out, r.Min.X, r.Min.Y, fmt.Sprintf("%s %.2f", det.Class, det.Confidence), c)
	}
	return out
}

// drawBox draws a rectangle outline
func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()

	for t := 0; t < thickness; t++ {
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if i < 0 {
				continue
			}
			if y+t >= 0 && y+t < bounds.Max.Y {
				img.SetRGBA(i, y+t, c)
			}
			if y+h-t >= 0 && y+h-t < bounds.Max.Y {
				img.SetRGBA(i, y+h-t, c)
			}
		}
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if j < 0 {
				continue
			}
			if x+t >= 0 && x+t < bounds.Max.X {
				img.SetRGBA(x+t, j, c)
			}
			if x+w-t >= 0 && x+w-t < bounds.Max.X {
				img.SetRGBA(x+w-t, j, c)
			}
		}
	}
}

// drawLabel draws white text on a filled class-coloured band above (x, y)
func drawLabel(img *image.RGBA, x, y int, label string, bg color.RGBA) {
	const bandHeight = 16
	top := y - bandHeight
	if top < 0 {
		top = 0
	}
	if x < 0 {
		x = 0
	}

	textWidth := len(label) * 7
	lim := img.Bounds().Max
	for py := top; py < top+bandHeight && py < lim.Y; py++ {
		for px := x; px < x+textWidth+4 && px < lim.X; px++ {
			img.SetRGBA(px, py, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelText),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x + 2), Y: fixed.I(top + 12)},
	}
	d.DrawString(label)
}

// EncodeJPEG encodes an image at the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64JPEG encodes an image as a base64 JPEG string for the viewer
func EncodeBase64JPEG(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
