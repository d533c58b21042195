package video

import (
	"image"
	"sync"
	"time"
)

// Frame is a processed frame received from the service.
type Frame struct {
	Image      image.Image
	JPEG       []byte // bytes as received, after base64 decoding
	Seq        uint64 // 1-based count of frames rendered by this renderer
	ReceivedAt time.Time
}

// Renderer holds the most recent valid processed frame for display.
// It is safe for concurrent use.
type Renderer struct {
	mu     sync.RWMutex
	latest *Frame
	seq    uint64
	now    func() time.Time
}

// NewRenderer creates an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// Render decodes payload and makes it the displayed frame. On failure the
// displayed frame is left as it was.
func (r *Renderer) Render(payload string) (Frame, error) {
	img, data, err := DecodeFrame(payload)
	if err != nil {
		return Frame{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	f := Frame{
		Image:      img,
		JPEG:       data,
		Seq:        r.seq,
		ReceivedAt: r.now(),
	}
	r.latest = &f
	return f, nil
}

// Latest returns the displayed frame, if any.
func (r *Renderer) Latest() (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return Frame{}, false
	}
	return *r.latest, true
}

// Clear removes the displayed frame.
func (r *Renderer) Clear() {
	r.mu.Lock()
	r.latest = nil
	r.mu.Unlock()
}
