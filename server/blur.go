package main

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultBlock is the pixelation cell size in pixels.
const DefaultBlock = 16

// pixelate averages src over block x block cells. There is no detector, so
// the whole frame is blurred whatever classes are kept.
func pixelate(src image.Image, block int) *image.RGBA {
	if block < 1 {
		block = 1
	}
	b := src.Bounds()
	small := image.NewRGBA(image.Rect(0, 0, max(1, b.Dx()/block), max(1, b.Dy()/block)))
	draw.BiLinear.Scale(small, small.Bounds(), src, b, draw.Src, nil)

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), draw.Src, nil)
	return out
}

func encodeFrame(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
