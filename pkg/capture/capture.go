// Package capture provides the camera frames fed to a streaming session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"os"
)

// ErrNoFrame is returned by a Source that has nothing to deliver yet.
// Callers skip the tick.
var ErrNoFrame = errors.New("no frame available")

// Source yields the current camera frame.
type Source interface {
	Capture(ctx context.Context) (image.Image, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (image.Image, error)

// Capture implements Source.
func (f SourceFunc) Capture(ctx context.Context) (image.Image, error) {
	return f(ctx)
}

// Static is a Source that always returns the same image.
type Static struct {
	img image.Image
}

// NewStatic creates a Source for img.
func NewStatic(img image.Image) *Static {
	return &Static{img: img}
}

// LoadFile creates a Static source from a JPEG or PNG file.
func LoadFile(path string) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return NewStatic(img), nil
}

// Capture implements Source.
func (s *Static) Capture(_ context.Context) (image.Image, error) {
	if s.img == nil {
		return nil, ErrNoFrame
	}
	return s.img, nil
}
