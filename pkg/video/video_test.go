package video

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// splitImage returns a w x h image whose left half is left and right half is right.
func splitImage(r image.Rectangle, left, right color.RGBA) *image.RGBA {
	img := image.NewRGBA(r)
	mid := r.Min.X + r.Dx()/2
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if x < mid {
				img.SetRGBA(x, y, left)
			} else {
				img.SetRGBA(x, y, right)
			}
		}
	}
	return img
}

// isMostly reports whether c is close to want, within JPEG loss.
func isMostly(c color.Color, want color.RGBA) bool {
	r, g, b, _ := c.RGBA()
	near := func(got uint32, want uint8) bool {
		d := int(got>>8) - int(want)
		return d > -60 && d < 60
	}
	return near(r, want.R) && near(g, want.G) && near(b, want.B)
}

func TestEncoder_Mirror(t *testing.T) {
	enc := NewEncoder()
	src := splitImage(image.Rect(0, 0, 640, 480), red, blue)

	out, err := enc.Mirror(src)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, Width, Height), out.Bounds())
	assert.True(t, isMostly(out.At(10, 120), blue), "left side should show the source's right half")
	assert.True(t, isMostly(out.At(Width-10, 120), red), "right side should show the source's left half")
}

func TestEncoder_MirrorOffsetBounds(t *testing.T) {
	enc := NewEncoder()
	src := splitImage(image.Rect(100, 50, 260, 170), red, blue)

	out, err := enc.Mirror(src)
	require.NoError(t, err)

	assert.True(t, isMostly(out.At(20, 20), blue))
	assert.True(t, isMostly(out.At(Width-20, Height-20), red))
}

func TestEncoder_EmptyImage(t *testing.T) {
	_, err := NewEncoder().EncodeBase64(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	enc := NewEncoder()
	src := splitImage(image.Rect(0, 0, 1280, 720), red, blue)

	payload, err := enc.EncodeBase64(src)
	require.NoError(t, err)

	img, data, err := DecodeFrame(payload)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())
	assert.True(t, isMostly(img.At(40, 120), blue))
	assert.True(t, isMostly(img.At(Width-40, 120), red))
}

func TestDecodeFrame_InvalidBase64(t *testing.T) {
	for _, payload := range []string{"", "not base64!", "data:image/jpeg;base64,QUJD", "QUJD\n"} {
		_, _, err := DecodeFrame(payload)
		assert.ErrorIs(t, err, ErrInvalidBase64, "payload %q", payload)
	}
}

func TestDecodeFrame_BadPadding(t *testing.T) {
	_, _, err := DecodeFrame("QUJ")
	assert.ErrorIs(t, err, ErrInvalidBase64)
}

func TestDecodeFrame_NotAnImage(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("definitely not a jpeg"))
	_, _, err := DecodeFrame(payload)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeFrame_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, splitImage(image.Rect(0, 0, 8, 8), red, blue)))

	img, _, err := DecodeFrame(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func jpegPayload(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, splitImage(image.Rect(0, 0, 32, 24), red, blue), nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRenderer_KeepsLastGoodFrame(t *testing.T) {
	r := NewRenderer()

	_, ok := r.Latest()
	assert.False(t, ok)

	_, err := r.Render("###")
	require.Error(t, err)
	_, ok = r.Latest()
	assert.False(t, ok, "a failed render must not produce a frame")

	f, err := r.Render(jpegPayload(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)

	_, err = r.Render(base64.StdEncoding.EncodeToString([]byte("garbage")))
	require.ErrorIs(t, err, ErrDecode)

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(1), latest.Seq)
	assert.Equal(t, 32, latest.Image.Bounds().Dx())
}

func TestRenderer_Clear(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render(jpegPayload(t))
	require.NoError(t, err)

	r.Clear()
	_, ok := r.Latest()
	assert.False(t, ok)
}

func TestFrameSaver_LatestOnly(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFrameSaver(dir, true)
	require.NoError(t, err)

	r := NewRenderer()
	for i := 0; i < 3; i++ {
		f, err := r.Render(jpegPayload(t))
		require.NoError(t, err)
		require.NoError(t, fs.Save(f))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, LatestFileName, entries[0].Name())

	saved, dropped := fs.Stats()
	assert.Equal(t, uint64(3), saved)
	assert.Zero(t, dropped)
}

func TestFrameSaver_PerFrame(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	fs, err := NewFrameSaver(dir, false)
	require.NoError(t, err)

	img := splitImage(image.Rect(0, 0, 16, 16), red, blue)
	require.NoError(t, fs.Save(Frame{Image: img, Seq: 7}))

	data, err := os.ReadFile(filepath.Join(dir, "frame_000007.jpg"))
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestFrameSaver_EmptyFrame(t *testing.T) {
	fs, err := NewFrameSaver(t.TempDir(), true)
	require.NoError(t, err)

	assert.Error(t, fs.Save(Frame{Seq: 1}))
	_, dropped := fs.Stats()
	assert.Equal(t, uint64(1), dropped)
}
