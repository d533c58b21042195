package video

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync/atomic"
)

// LatestFileName is the file rewritten by a saver in latest-only mode.
const LatestFileName = "latest.jpg"

// FrameSaver writes rendered frames to disk.
//
// In latest-only mode a single latest.jpg is replaced atomically on every
// frame, otherwise each frame gets its own frame_<seq>.jpg.
// Safe to call from multiple goroutines.
type FrameSaver struct {
	outputDir  string
	latestOnly bool

	framesSaved   atomic.Uint64
	framesDropped atomic.Uint64
}

// NewFrameSaver creates a saver writing into outputDir, creating it if needed.
func NewFrameSaver(outputDir string, latestOnly bool) (*FrameSaver, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FrameSaver{outputDir: outputDir, latestOnly: latestOnly}, nil
}

// Save writes f to disk.
func (fs *FrameSaver) Save(f Frame) error {
	data := f.JPEG
	if len(data) == 0 {
		if f.Image == nil {
			fs.framesDropped.Add(1)
			return fmt.Errorf("frame %d has no content", f.Seq)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, f.Image, nil); err != nil {
			fs.framesDropped.Add(1)
			return fmt.Errorf("failed to encode frame %d: %w", f.Seq, err)
		}
		data = buf.Bytes()
	}

	name := fmt.Sprintf("frame_%06d.jpg", f.Seq)
	if fs.latestOnly {
		name = LatestFileName
	}
	path := filepath.Join(fs.outputDir, name)

	// Rename into place; readers never observe a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		fs.framesDropped.Add(1)
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		fs.framesDropped.Add(1)
		return fmt.Errorf("failed to move frame into place: %w", err)
	}

	fs.framesSaved.Add(1)
	return nil
}

// Stats returns the number of frames saved and dropped.
func (fs *FrameSaver) Stats() (saved, dropped uint64) {
	return fs.framesSaved.Load(), fs.framesDropped.Load()
}
