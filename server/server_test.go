package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/live_blur/client"
	"example.com/live_blur/pkg/capture"
	"example.com/live_blur/pkg/logger"
	"example.com/live_blur/pkg/video"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Heartbeat == 0 {
		opts.Heartbeat = time.Hour
	}
	opts.Logger = logger.Discard()
	s := NewServer(opts)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func liveURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + LivePath
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(liveURL(srv), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) Reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var r Reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

// stripes returns an image of alternating black and white columns.
func stripes(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func jpegBase64(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLive_Errors(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	conn := dial(t, srv)

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"not json", `not json`, errInvalidJSON},
		{"missing frame", `{"type":"frame","classes_no_blur":["cristalline"]}`, errMissingFields},
		{"missing classes", `{"type":"frame","frame":"aGVsbG8=","classes_no_blur":[]}`, errMissingFields},
		{"bad base64", `{"type":"frame","frame":"@@@","classes_no_blur":["cristalline"]}`, errInvalidBase64},
		{"not an image", `{"type":"frame","frame":"aGVsbG8=","classes_no_blur":["cristalline"]}`, errInvalidFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.msg)))
			assert.Equal(t, Reply{Error: tt.want}, readReply(t, conn))
		})
	}
}

func TestLive_FrameIsPixelated(t *testing.T) {
	_, srv := newTestServer(t, Options{Block: 16})
	conn := dial(t, srv)

	// A pong gets no reply, so the first reply belongs to the frame.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)))
	req := FrameRequest{Type: "frame", Frame: jpegBase64(t, stripes(320, 240)), ClassesNoBlur: []string{"Cristalline"}}
	require.NoError(t, conn.WriteJSON(req))

	r := readReply(t, conn)
	require.Empty(t, r.Error)
	img, _, err := video.DecodeFrame(r.Frame)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())

	gray := color.GrayModel.Convert(img.At(160, 120)).(color.Gray)
	assert.InDelta(t, 128, int(gray.Y), 48, "stripes average to grey")
}

func TestLive_Heartbeat(t *testing.T) {
	_, srv := newTestServer(t, Options{Heartbeat: 20 * time.Millisecond})
	conn := dial(t, srv)

	assert.Equal(t, Reply{Type: "ping"}, readReply(t, conn))
	assert.Equal(t, Reply{Type: "ping"}, readReply(t, conn))
}

func TestShutdown_ClosesClients(t *testing.T) {
	s, srv := newTestServer(t, Options{})
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	s.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
	assert.Equal(t, closeReasonServer, ce.Text)

	require.Eventually(t, func() bool { return s.hub.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

// TestClientSession runs a full live session against the server.
func TestClientSession(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	c, err := client.New(client.Config{
		ServerURL: liveURL(srv),
		Targets:   []string{"brand1"},
		Source:    capture.NewStatic(stripes(640, 480)),
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool {
		return c.Snapshot().FramesReceived >= 2
	}, 10*time.Second, 20*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, client.StatusStreaming, snap.Status)
	assert.Empty(t, snap.ErrorMessage)

	f, ok := c.LatestFrame()
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, video.Width, video.Height), f.Image.Bounds())

	require.NoError(t, c.Stop())
	assert.Equal(t, client.StatusIdle, c.Snapshot().Status)
}
