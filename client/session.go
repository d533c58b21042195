package client

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"example.com/live_blur/pkg/capture"
	"example.com/live_blur/pkg/metrics"
	"example.com/live_blur/pkg/protocol"
	"example.com/live_blur/pkg/reconnect"
	"example.com/live_blur/pkg/targets"
	"example.com/live_blur/pkg/transport"
	"example.com/live_blur/pkg/watchdog"
)

// event is anything the loop handles. Commands are run by the loop itself.
// Channel events carry the generation of the channel that produced them;
// timer events carry their token.
type event interface{}

type (
	commandEvent struct {
		fn    func() error
		reply chan error
	}
	openEvent struct {
		gen uint64
	}
	messageEvent struct {
		gen  uint64
		data []byte
	}
	errorEvent struct {
		gen uint64
		err error
	}
	closeEvent struct {
		gen    uint64
		code   int
		reason string
	}
	watchdogEvent struct {
		token uint64
	}
	reconnectEvent struct {
		token uint64
	}
	tickEvent struct {
		gen uint64
	}
)

// channelHandler forwards the callbacks of one channel to the loop.
type channelHandler struct {
	c   *Client
	gen uint64
}

func (h *channelHandler) OnOpen() {
	h.c.post(openEvent{gen: h.gen})
}

func (h *channelHandler) OnMessage(data []byte) {
	h.c.post(messageEvent{gen: h.gen, data: data})
}

func (h *channelHandler) OnError(err error) {
	h.c.post(errorEvent{gen: h.gen, err: err})
}

func (h *channelHandler) OnClose(code int, reason string) {
	h.c.post(closeEvent{gen: h.gen, code: code, reason: reason})
}

// session is the state owned by the event loop.
type session struct {
	c   *Client
	log *slog.Logger

	status    Status
	errMsg    string
	selection *targets.Selection

	sessionID string
	attempt   uint64 // per session, for display
	gen       uint64 // per channel, never reset
	channel   transport.Channel
	timedOut  bool // current channel was closed by the watchdog

	watchdog *watchdog.Watchdog
	policy   *reconnect.Policy

	reconnectTimer clock.Timer
	reconnectToken uint64

	ticker     clock.Ticker
	tickerStop chan struct{}
	tickGen    uint64

	frameSeq       uint64
	framesReceived uint64

	closing bool
}

func newSession(c *Client, ids []string) session {
	return session{
		c:         c,
		log:       c.log,
		status:    StatusIdle,
		selection: targets.NewSelection(ids...),
		policy:    c.cfg.Policy,
		watchdog: watchdog.New(c.clock, watchdog.DefaultTimeout, func(token uint64) {
			c.post(watchdogEvent{token: token})
		}),
	}
}

func (s *session) handle(ev event) {
	switch ev := ev.(type) {
	case openEvent:
		if s.current(ev.gen) {
			s.onOpen()
		}
	case messageEvent:
		if s.current(ev.gen) {
			s.onMessage(ev.data)
		}
	case errorEvent:
		if s.current(ev.gen) {
			s.onError(ev.err)
		}
	case closeEvent:
		if s.current(ev.gen) {
			s.onClose(ev.code, ev.reason)
		}
	case watchdogEvent:
		s.onWatchdog(ev.token)
	case reconnectEvent:
		s.onReconnect(ev.token)
	case tickEvent:
		s.onTick(ev.gen)
	}
}

// current reports whether gen is the live channel.
func (s *session) current(gen uint64) bool {
	return s.channel != nil && gen == s.gen
}

func (s *session) start() error {
	if s.status == StatusConnecting || s.status == StatusStreaming {
		return ErrActive
	}
	if s.selection.Len() == 0 {
		s.errMsg = msgNoTargets
		s.log.Warn("start refused", "reason", msgNoTargets)
		return ErrNoTargets
	}

	s.release()
	s.sessionID = uuid.NewString()
	s.log = s.c.log.With("session_id", s.sessionID)
	s.attempt = 0
	s.frameSeq = 0
	s.framesReceived = 0
	s.policy.Reset()

	s.connect()
	return nil
}

// connect opens a new channel for the current session.
func (s *session) connect() {
	s.gen++
	s.attempt++
	s.timedOut = false
	s.errMsg = ""
	s.setStatus(StatusConnecting)
	s.c.metrics.ConnectionAttempt()

	s.log.Info("connecting", "attempt", s.attempt, "url", s.c.cfg.ServerURL)
	s.channel = s.c.dialer.Open(s.c.ctx, s.c.cfg.ServerURL, &channelHandler{c: s.c, gen: s.gen})
}

// release closes the channel and cancels every timer. Status is untouched.
func (s *session) release() {
	if s.channel != nil {
		s.channel.Close(transport.CloseNormal, closeReasonStop)
		s.channel = nil
	}
	s.watchdog.Stop()
	s.cancelReconnect()
	s.stopTicker()
	s.c.renderer.Clear()
}

func (s *session) stop() {
	if s.status != StatusIdle {
		s.log.Info("streaming stopped", "frames_sent", s.frameSeq, "frames_received", s.framesReceived)
	}
	s.release()
	s.errMsg = ""
	s.setStatus(StatusIdle)
}

func (s *session) setStatus(st Status) {
	if st == s.status {
		return
	}
	s.log.Debug("status changed", "from", s.status, "to", st)
	s.status = st
	s.c.metrics.SetStatus(string(st))
}

func (s *session) onOpen() {
	s.log.Info("streaming", "attempt", s.attempt)
	s.setStatus(StatusStreaming)
	s.policy.Reset()
	s.watchdog.Arm()
	s.startTicker()
}

func (s *session) onMessage(data []byte) {
	// The channel is on its way out after a liveness timeout.
	if s.timedOut {
		return
	}

	msg, err := protocol.Parse(data)
	if err != nil {
		s.log.Warn("malformed message", "error", err, "bytes", len(data))
		s.c.metrics.FrameError(metrics.StageParse)
		s.errMsg = msgMalformed
		return
	}

	s.watchdog.Arm()

	switch msg.Kind {
	case protocol.KindPong:
		s.log.Debug("pong received")

	case protocol.KindPing:
		if err := s.channel.Send(protocol.Pong()); err != nil {
			s.log.Warn("failed to answer ping", "error", err)
		}

	case protocol.KindError:
		s.log.Error("server error", "detail", msg.Detail)
		s.stopTicker()
		s.errMsg = msg.Detail
		s.setStatus(StatusError)

	case protocol.KindFrame:
		s.render(msg.Frame)
	}
}

func (s *session) render(payload string) {
	if s.status != StatusStreaming {
		s.log.Debug("frame dropped", "status", s.status)
		return
	}

	f, err := s.c.renderer.Render(payload)
	if err != nil {
		s.log.Warn("failed to render frame", "error", err)
		s.c.metrics.FrameError(metrics.StageDecode)
		s.errMsg = msgBadFrame
		return
	}

	s.framesReceived++
	s.c.metrics.FrameReceived()

	if s.c.saves != nil {
		select {
		case s.c.saves <- f:
		default:
			s.log.Debug("save queue full, frame not saved", "seq", f.Seq)
		}
	}
	if cb := s.c.frameCallback(); cb != nil {
		cb(f)
	}
}

func (s *session) onError(err error) {
	s.log.Warn("channel error", "error", err)
	s.watchdog.Stop()
	s.stopTicker()
	s.errMsg = msgConnection
	s.setStatus(StatusError)
}

func (s *session) onClose(code int, reason string) {
	s.log.Info("channel closed", "code", code, "reason", reason)
	s.channel = nil
	s.watchdog.Stop()
	s.stopTicker()
	s.c.renderer.Clear()

	if s.timedOut {
		return
	}

	d := s.policy.Decide(code)
	if !d.Reconnect {
		s.setStatus(StatusIdle)
		return
	}
	s.setStatus(StatusConnecting)
	s.scheduleReconnect(d.Delay)
}

func (s *session) onWatchdog(token uint64) {
	if !s.watchdog.Expired(token) || s.channel == nil {
		return
	}

	s.log.Warn("no response from server", "timeout", s.watchdog.Timeout())
	s.c.metrics.WatchdogTimeout()
	s.timedOut = true
	s.stopTicker()
	s.channel.Close(transport.CloseGoingAway, closeReasonTimeout)
	s.errMsg = msgNoResponse
	s.setStatus(StatusError)
}

func (s *session) scheduleReconnect(delay time.Duration) {
	s.cancelReconnect()
	token := s.reconnectToken
	c := s.c
	s.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.post(reconnectEvent{token: token})
	})
	c.metrics.Reconnect()
	s.log.Info("reconnecting", "delay", delay)
}

func (s *session) cancelReconnect() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.reconnectToken++
}

func (s *session) onReconnect(token uint64) {
	if s.reconnectTimer == nil || token != s.reconnectToken {
		return
	}
	s.reconnectTimer = nil

	if s.selection.Len() == 0 {
		s.errMsg = msgNoTargets
		s.setStatus(StatusIdle)
		return
	}
	s.connect()
}

func (s *session) startTicker() {
	if s.ticker != nil {
		return
	}
	s.tickGen++
	gen := s.tickGen
	c := s.c
	t := c.clock.NewTicker(FrameInterval)
	stop := make(chan struct{})
	s.ticker, s.tickerStop = t, stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				c.post(tickEvent{gen: gen})
			}
		}
	}()
}

func (s *session) stopTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickerStop)
	s.ticker, s.tickerStop = nil, nil
}

// onTick captures, encodes and sends one frame.
func (s *session) onTick(gen uint64) {
	if gen != s.tickGen || s.ticker == nil || s.status != StatusStreaming {
		return
	}
	if s.channel == nil || !s.channel.IsOpen() {
		return
	}

	img, err := s.c.cfg.Source.Capture(s.c.ctx)
	if errors.Is(err, capture.ErrNoFrame) {
		return
	}
	if err != nil {
		s.frameFailed(metrics.StageCapture, msgCaptureFailed, err)
		return
	}

	payload, err := s.c.encoder.EncodeBase64(img)
	if err != nil {
		s.frameFailed(metrics.StageEncode, msgEncodeFailed, err)
		return
	}
	data, err := protocol.EncodeFrame(payload, s.selection.Names(s.c.catalog))
	if err != nil {
		s.frameFailed(metrics.StageEncode, msgEncodeFailed, err)
		return
	}

	if err := s.channel.Send(data); err != nil {
		if errors.Is(err, transport.ErrNotOpen) {
			return
		}
		s.frameFailed(metrics.StageSend, msgSendFailed, err)
		return
	}

	s.frameSeq++
	s.c.metrics.FrameSent()
	s.log.Debug("frame sent", "seq", s.frameSeq, "bytes", len(data))
}

func (s *session) frameFailed(stage, msg string, err error) {
	s.log.Warn(msg, "error", err)
	s.c.metrics.FrameError(stage)
	s.errMsg = msg
}
