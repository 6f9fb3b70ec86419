package playback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"playback-bridge/internal/bridge"
	"playback-bridge/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 256
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// Hub is an EventSink that streams canonical events to websocket
// subscribers. A subscriber that falls a full buffer behind is disconnected
// rather than silently skipping events.
type Hub struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	id     string
	tag    bridge.Handle
	all    bool
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *subscriber) wants(h bridge.Handle) bool {
	return s.all || s.tag == h
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

// NewHub returns a hub with no subscribers.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[string]*subscriber),
	}
}

// Emit implements bridge.EventSink. It never blocks.
func (h *Hub) Emit(e bridge.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Kind, err)
	}

	h.mu.RLock()
	var slow []*subscriber
	for _, s := range h.subs {
		if !s.wants(e.Handle) {
			continue
		}
		select {
		case <-s.closed:
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.log.Warn("event subscriber too slow, disconnecting", slog.String("subscriber", s.id))
		h.remove(s)
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP handles GET /events. The optional tag query parameter limits the
// stream to one player.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := &subscriber{
		id:     uuid.NewString(),
		all:    true,
		send:   make(chan []byte, subscriberBuffer),
		closed: make(chan struct{}),
	}
	if raw := r.URL.Query().Get("tag"); raw != "" {
		tag, err := strconv.Atoi(raw)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.tag, s.all = bridge.Handle(tag), false
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.add(s)
	log := h.log.With(slog.String("subscriber", s.id))
	log.Info("event subscriber connected", slog.Bool("all", s.all), slog.Int("tag", int(s.tag)))

	go h.writeLoop(conn, s, log)
	h.readLoop(conn, s)

	h.remove(s)
	log.Info("event subscriber disconnected")
}

// readLoop consumes control frames until the peer goes away.
func (h *Hub) readLoop(conn *websocket.Conn, s *subscriber) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.close()
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, s *subscriber, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-s.closed:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("event write failed", slog.String("error", err.Error()))
				s.close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		}
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()
	h.metrics.SetEventSubscribers(n)
}

func (h *Hub) remove(s *subscriber) {
	s.close()
	h.mu.Lock()
	_, ok := h.subs[s.id]
	delete(h.subs, s.id)
	n := len(h.subs)
	h.mu.Unlock()
	if ok {
		h.metrics.SetEventSubscribers(n)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		h.remove(s)
	}
}
