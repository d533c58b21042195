package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"example.com/live_blur/pkg/logger"
	"example.com/live_blur/pkg/protocol"
	"example.com/live_blur/pkg/video"
)

// LivePath is the live blurring endpoint.
const LivePath = "/ws/blur_bottles_live"

// DefaultHeartbeat is the interval between pings sent to each client.
const DefaultHeartbeat = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options configures a Server.
type Options struct {
	Heartbeat time.Duration
	Block     int
	Logger    *slog.Logger
}

// Server serves the live endpoint.
type Server struct {
	hub       *Hub
	heartbeat time.Duration
	block     int
	log       *slog.Logger
}

// NewServer creates a server.
func NewServer(opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Block <= 0 {
		opts.Block = DefaultBlock
	}
	return &Server{
		hub:       NewHub(),
		heartbeat: opts.Heartbeat,
		block:     opts.Block,
		log:       logger.OrDefault(opts.Logger).With("component", "blurserver"),
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(LivePath, s.handleLive)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "sessions": s.hub.Count()})
	})
	return mux
}

// Shutdown asks every connected client to go away.
func (s *Server) Shutdown() {
	s.hub.CloseAll(websocket.CloseGoingAway, closeReasonServer)
}

// handleLive runs one live session.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	peer := &Peer{ID: uuid.NewString(), Conn: conn}
	log := s.log.With("peer", peer.ID)
	s.hub.Add(peer)
	defer s.hub.Remove(peer.ID)
	log.Info("client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.heartbeatLoop(ctx, peer, log)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				log.Info("client disconnected", "code", ce.Code, "frames", peer.frames.Load())
			} else {
				log.Warn("read failed", "error", err, "frames", peer.frames.Load())
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		reply := s.handleMessage(data, log)
		if reply == (Reply{}) {
			continue
		}
		if err := peer.Send(reply); err != nil {
			log.Warn("write failed", "error", err)
			return
		}
		if reply.Frame != "" {
			peer.frames.Add(1)
		}
	}
}

// handleMessage processes one client message. A zero Reply means nothing is
// sent back.
func (s *Server) handleMessage(data []byte, log *slog.Logger) Reply {
	var req FrameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Warn("invalid JSON received", "error", err)
		return Reply{Error: errInvalidJSON}
	}
	if req.Type == protocol.TypePong {
		log.Debug("pong received")
		return Reply{}
	}
	if req.Frame == "" || len(req.ClassesNoBlur) == 0 {
		return Reply{Error: errMissingFields}
	}

	img, _, err := video.DecodeFrame(req.Frame)
	switch {
	case errors.Is(err, video.ErrInvalidBase64):
		return Reply{Error: errInvalidBase64}
	case err != nil:
		return Reply{Error: errInvalidFrame}
	}

	keep := make([]string, len(req.ClassesNoBlur))
	for i, c := range req.ClassesNoBlur {
		keep[i] = strings.ToLower(c)
	}
	log.Debug("processing frame", "classes_no_blur", keep, "size", img.Bounds().Size())

	payload, err := encodeFrame(pixelate(img, s.block))
	if err != nil {
		log.Error("failed to encode frame", "error", err)
		return Reply{Error: errEncodeFailed}
	}
	return Reply{Frame: payload}
}

func (s *Server) heartbeatLoop(ctx context.Context, peer *Peer, log *slog.Logger) {
	t := time.NewTicker(s.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := peer.Send(Reply{Type: protocol.TypePing}); err != nil {
				log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}
