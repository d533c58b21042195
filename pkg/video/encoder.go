// Package video converts camera frames to the wire format expected by the
// blurring service and decodes the frames it sends back.
package video

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Output geometry of every frame sent to the service.
const (
	Width  = 320
	Height = 240
)

// ErrEmptyImage is returned when asked to encode an image with no pixels.
var ErrEmptyImage = errors.New("empty source image")

// Encoder scales frames to the fixed output size, mirrors them horizontally
// and encodes them as JPEG.
type Encoder struct {
	width  int
	height int
	interp draw.Interpolator
}

// NewEncoder creates an encoder producing Width x Height frames.
func NewEncoder() *Encoder {
	return &Encoder{
		width:  Width,
		height: Height,
		interp: draw.ApproxBiLinear,
	}
}

// Mirror renders src into a new Width x Height image, flipped left to right.
func (e *Encoder) Mirror(src image.Image) (*image.RGBA, error) {
	sr := src.Bounds()
	if sr.Empty() {
		return nil, ErrEmptyImage
	}

	dst := image.NewRGBA(image.Rect(0, 0, e.width, e.height))

	sx := float64(e.width) / float64(sr.Dx())
	sy := float64(e.height) / float64(sr.Dy())

	// Maps source (x, y) to destination (W - (x-x0)*sx, (y-y0)*sy).
	s2d := f64.Aff3{
		-sx, 0, float64(e.width) + float64(sr.Min.X)*sx,
		0, sy, -float64(sr.Min.Y) * sy,
	}
	e.interp.Transform(dst, s2d, src, sr, draw.Src, nil)

	return dst, nil
}

// EncodeJPEG mirrors src and encodes it at the JPEG encoder's default quality.
func (e *Encoder) EncodeJPEG(src image.Image) ([]byte, error) {
	img, err := e.Mirror(src)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns the transport form of src: a base64 JPEG.
func (e *Encoder) EncodeBase64(src image.Image) (string, error) {
	data, err := e.EncodeJPEG(src)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
