package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polarlyst/arbmonitor/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must stay below pongWait

	maxInboundBytes = 4096
	sessionBuffer   = 256
)

// defaultChannels are the bus channels bridged to connected clients:
// refresh snapshots and high-spread alerts.
var defaultChannels = []string{
	"arbmon:refresh",
	"arbmon:alerts",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the CORS middleware for the REST
		// surface; the ws endpoint accepts any origin.
		return true
	},
}

// Hub fans bus messages out to connected WebSocket sessions. Each session
// starts subscribed to every bridged channel and may narrow its set with
// subscribe/unsubscribe frames.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*session]struct{}

	joins  chan *session
	leaves chan *session
	out    chan frame

	bus      domain.SignalBus
	channels []string
	logger   *slog.Logger

	mode      string
	startedAt time.Time
}

// frame is a bus message tagged with its source channel for routing.
type frame struct {
	channel string
	body    []byte
}

// session is one upgraded connection plus its channel filter.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	filter map[string]bool
	mu     sync.RWMutex
}

// controlFrame is the inbound JSON shape clients use to adjust their
// subscriptions.
type controlFrame struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// Config carries the runtime metadata included in the status envelope each
// session receives on connect.
type Config struct {
	Mode      string
	StartedAt time.Time

	// Channels overrides the default bridged channel set.
	Channels []string
}

// NewHub returns a hub bridging the given signal bus to WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = defaultChannels
	}

	return &Hub{
		sessions:  make(map[*session]struct{}),
		joins:     make(chan *session),
		leaves:    make(chan *session),
		out:       make(chan frame, 256),
		bus:       bus,
		channels:  channels,
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: started,
	}
}

// Run drives the hub until ctx is cancelled: it accepts joins and leaves and
// routes bridged frames to subscribed sessions. Call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range h.channels {
		go h.bridge(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				close(s.send)
			}
			h.sessions = make(map[*session]struct{})
			h.mu.Unlock()
			return ctx.Err()

		case s := <-h.joins:
			h.mu.Lock()
			h.sessions[s] = struct{}{}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("sessions", n))

		case s := <-h.leaves:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				close(s.send)
			}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("sessions", n))

		case f := <-h.out:
			h.mu.RLock()
			for s := range h.sessions {
				if !s.wants(f.channel) {
					continue
				}
				select {
				case s.send <- f.body:
				default:
					// Slow consumer: drop rather than stall the hub.
					h.logger.Warn("dropping frame for slow client",
						slog.String("channel", f.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// bridge subscribes to one bus channel and feeds its messages into the hub,
// wrapped in a typed envelope.
func (h *Hub) bridge(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}
	h.logger.Info("bridging channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-msgs:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", channel))
				return
			}
			h.out <- frame{channel: channel, body: envelope(channel, payload)}
		}
	}
}

// envelope tags a raw bus payload with its channel so clients can route
// without inspecting the body.
func envelope(channel string, payload []byte) []byte {
	b, err := json.Marshal(map[string]any{
		"type":    channel,
		"payload": json.RawMessage(payload),
	})
	if err != nil {
		return payload
	}
	return b
}

// HandleWS upgrades the request and attaches the new session to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sessionBuffer),
		filter: make(map[string]bool, len(h.channels)),
	}
	for _, ch := range h.channels {
		s.filter[ch] = true
	}

	h.joins <- s
	s.greet()

	go s.writeLoop()
	go s.readLoop()
}

// greet queues a status envelope so a fresh client sees the connection as
// live before the first refresh arrives.
func (s *session) greet() {
	uptime := int64(time.Since(s.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	b, err := json.Marshal(map[string]any{
		"type": "monitor_status",
		"payload": map[string]any{
			"mode":           s.hub.mode,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}
	select {
	case s.send <- b:
	default:
	}
}

// wants reports whether the session's filter covers the channel. A trailing
// "*" in a filter entry matches by prefix, so "arbmon:*" covers both bridged
// channels.
func (s *session) wants(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.filter[channel] {
		return true
	}
	for pat := range s.filter {
		if n := len(pat); n > 0 && pat[n-1] == '*' && strings.HasPrefix(channel, pat[:n-1]) {
			return true
		}
	}
	return false
}

func (s *session) applyControl(cf controlFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cf.Action {
	case "subscribe":
		for _, ch := range cf.Channels {
			s.filter[ch] = true
		}
	case "unsubscribe":
		for _, ch := range cf.Channels {
			delete(s.filter, ch)
		}
	}
}

// readLoop consumes inbound frames, treating any JSON with an "action" field
// as a subscription control frame. It also refreshes the read deadline on
// pongs.
func (s *session) readLoop() {
	defer func() {
		s.hub.leaves <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxInboundBytes)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var cf controlFrame
		if err := json.Unmarshal(msg, &cf); err == nil && cf.Action != "" {
			s.applyControl(cf)
		}
	}
}

// writeLoop sends queued envelopes as JSON text frames and pings on the
// keepalive interval.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
