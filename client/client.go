// Package client implements the live blurring session: it streams camera
// frames to the service, renders the frames it sends back and keeps the
// connection alive across network failures.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"example.com/live_blur/pkg/capture"
	"example.com/live_blur/pkg/logger"
	"example.com/live_blur/pkg/metrics"
	"example.com/live_blur/pkg/reconnect"
	"example.com/live_blur/pkg/targets"
	"example.com/live_blur/pkg/transport"
	"example.com/live_blur/pkg/video"
)

// DefaultServerURL is the live endpoint of a locally running service.
const DefaultServerURL = "ws://localhost:8000/ws/blur_bottles_live"

// FrameInterval is the capture cadence while streaming (about 5 fps).
const FrameInterval = 200 * time.Millisecond

// saveQueueSize bounds the frames waiting to be written to disk.
const saveQueueSize = 16

// Status is the session state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusStreaming  Status = "streaming"
	StatusError      Status = "error"
)

// User-facing messages.
const (
	msgNoTargets       = "select at least one target to keep unblurred"
	msgMalformed       = "received malformed data"
	msgConnection      = "connection error, check that the server is running"
	msgNoResponse      = "no response from server, check the connection"
	msgBadFrame        = "failed to process the received frame"
	msgCaptureFailed   = "failed to capture frame"
	msgEncodeFailed    = "failed to encode frame"
	msgSendFailed      = "failed to send frame"
	closeReasonTimeout = "no response from server"
	closeReasonStop    = "user stopped streaming"
)

var (
	// ErrNoTargets is returned by Start when nothing is selected.
	ErrNoTargets = errors.New(msgNoTargets)

	// ErrActive is returned by Start while a session is connecting or streaming.
	ErrActive = errors.New("session already active")

	// ErrUnknownTarget is returned for ids missing from the catalog.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("client is closed")
)

// Config holds the session collaborators. Only Source is required.
type Config struct {
	ServerURL string           // defaults to DefaultServerURL
	Catalog   *targets.Catalog // defaults to targets.Defaults()
	Targets   []string         // initial selection
	Source    capture.Source

	Dialer  transport.Dialer                    // defaults to a websocket dialer
	Clock   clock.WithTickerAndDelayedExecution // defaults to the real clock
	Policy  *reconnect.Policy                   // defaults to reconnect.NewPolicy()
	Metrics *metrics.Metrics                    // optional
	Saver   *video.FrameSaver                   // optional
	Logger  *slog.Logger
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	SessionID       string   `json:"session_id,omitempty"`
	Attempt         uint64   `json:"attempt"`
	Status          Status   `json:"status"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	SelectedTargets []string `json:"selected_targets"`
	FrameSequence   uint64   `json:"frame_sequence"`
	FramesReceived  uint64   `json:"frames_received"`
	HasFrame        bool     `json:"has_frame"`
}

// StatusCallback is called after every status change.
type StatusCallback func(s Snapshot)

// FrameCallback is called for every processed frame rendered.
type FrameCallback func(f video.Frame)

// Client is a live blurring session controller. All state is owned by a
// single event loop; the exported methods are safe for concurrent use.
type Client struct {
	cfg      Config
	log      *slog.Logger
	clock    clock.WithTickerAndDelayedExecution
	dialer   transport.Dialer
	catalog  *targets.Catalog
	encoder  *video.Encoder
	renderer *video.Renderer
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}
	saves  chan video.Frame // nil without a Saver

	// Owned by the event loop.
	s session

	snapMu sync.RWMutex
	snap   Snapshot

	cbMu     sync.Mutex
	onStatus StatusCallback
	onFrame  FrameCallback
}

// New creates a client and starts its event loop. The session starts idle.
func New(cfg Config) (*Client, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("capture source is required")
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.Catalog == nil {
		catalog, err := targets.NewCatalog(targets.Defaults())
		if err != nil {
			return nil, err
		}
		cfg.Catalog = catalog
	}
	for _, id := range cfg.Targets {
		if _, ok := cfg.Catalog.Lookup(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Policy == nil {
		cfg.Policy = reconnect.NewPolicy()
	}
	log := logger.OrDefault(cfg.Logger).With("component", "client")
	if cfg.Dialer == nil {
		// A stalled peer holds up the event loop for at most one tick.
		cfg.Dialer = transport.NewDialer(transport.Config{WriteWait: FrameInterval, Logger: log})
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		log:      log,
		clock:    cfg.Clock,
		dialer:   cfg.Dialer,
		catalog:  cfg.Catalog,
		encoder:  video.NewEncoder(),
		renderer: video.NewRenderer(),
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan event, 64),
		done:     make(chan struct{}),
	}
	c.s = newSession(c, cfg.Targets)
	c.publish()

	if cfg.Saver != nil {
		c.saves = make(chan video.Frame, saveQueueSize)
		go c.saveLoop()
	}
	go c.run()
	return c, nil
}

// OnStatusChange sets the callback for status changes. It runs on the
// event loop and must not call back into the Client.
func (c *Client) OnStatusChange(callback StatusCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onStatus = callback
}

// OnFrame sets the callback for rendered frames. It runs on the event loop
// and must not call back into the Client.
func (c *Client) OnFrame(callback FrameCallback) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onFrame = callback
}

// Start begins streaming. It fails with ErrNoTargets, leaving the session
// idle, when no target is selected.
func (c *Client) Start() error {
	return c.do(c.s.start)
}

// Stop ends the session and returns it to idle. Calling Stop on an idle
// session is a no-op.
func (c *Client) Stop() error {
	return c.do(func() error {
		c.s.stop()
		return nil
	})
}

// ToggleTarget adds or removes a target from the selection and reports
// whether it is selected afterwards. The next frame sent uses the new
// selection.
func (c *Client) ToggleTarget(id string) (bool, error) {
	var selected bool
	err := c.do(func() error {
		if _, ok := c.catalog.Lookup(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
		}
		selected = c.s.selection.Toggle(id)
		return nil
	})
	return selected, err
}

// SetTargets replaces the selection.
func (c *Client) SetTargets(ids []string) error {
	return c.do(func() error {
		for _, id := range ids {
			if _, ok := c.catalog.Lookup(id); !ok {
				return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
			}
		}
		c.s.selection.Set(ids)
		return nil
	})
}

// Close stops the session and its event loop. It is safe to call more than
// once.
func (c *Client) Close() error {
	err := c.do(func() error {
		c.s.stop()
		c.s.closing = true
		return nil
	})
	c.cancel()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	<-c.done
	return err
}

// Snapshot returns the current session state.
func (c *Client) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()

	s := c.snap
	s.SelectedTargets = append([]string(nil), c.snap.SelectedTargets...)
	return s
}

// LatestFrame returns the processed frame currently displayed, if any.
func (c *Client) LatestFrame() (video.Frame, bool) {
	return c.renderer.Latest()
}

// Catalog returns the target catalog.
func (c *Client) Catalog() *targets.Catalog {
	return c.catalog
}

// Done is closed when the event loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// do runs fn on the event loop and waits for its result.
func (c *Client) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- commandEvent{fn: fn, reply: reply}:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// post queues an event for the loop. Events posted after Close are dropped.
func (c *Client) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// saveLoop writes rendered frames to disk off the event loop.
func (c *Client) saveLoop() {
	for {
		select {
		case f := <-c.saves:
			if err := c.cfg.Saver.Save(f); err != nil {
				c.log.Warn("failed to save frame", "error", err)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) run() {
	defer close(c.done)

	for ev := range c.events {
		prev := c.Snapshot().Status

		// Commands reply once their effect is visible through Snapshot.
		cmd, isCmd := ev.(commandEvent)
		var err error
		if isCmd {
			err = cmd.fn()
		} else {
			c.s.handle(ev)
		}
		snap := c.publish()

		if snap.Status != prev {
			c.cbMu.Lock()
			cb := c.onStatus
			c.cbMu.Unlock()
			if cb != nil {
				cb(snap)
			}
		}
		if isCmd {
			cmd.reply <- err
		}
		if c.s.closing {
			return
		}
	}
}

// publish copies the loop state into the snapshot read by Snapshot.
func (c *Client) publish() Snapshot {
	_, hasFrame := c.renderer.Latest()
	snap := Snapshot{
		SessionID:       c.s.sessionID,
		Attempt:         c.s.attempt,
		Status:          c.s.status,
		ErrorMessage:    c.s.errMsg,
		SelectedTargets: c.s.selection.IDs(),
		FrameSequence:   c.s.frameSeq,
		FramesReceived:  c.s.framesReceived,
		HasFrame:        hasFrame,
	}

	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()
	return snap
}

func (c *Client) frameCallback() FrameCallback {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.onFrame
}
