package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/domain"
	"github.com/example/autoescola/internal/metrics"
	"github.com/example/autoescola/internal/session"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPongTimeout  = 60 * time.Second
	eventPingInterval = 25 * time.Second
	eventBuffer       = 16
)

type subscriberKey struct {
	userID string
	role   domain.Role
}

type subscriber struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// EventHub pushes session events to the websocket connections of a principal.
// It implements application.EventPublisher.
type EventHub struct {
	mu       sync.Mutex
	subs     map[subscriberKey]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewEventHub(logger zerolog.Logger) *EventHub {
	return &EventHub{
		subs: make(map[subscriberKey]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "event_hub").Logger(),
	}
}

// Publish queues event for every connection of (userID, role). Slow
// connections whose buffer is full miss the event.
func (h *EventHub) Publish(userID string, role domain.Role, event session.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode session event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[subscriberKey{userID: userID, role: role}] {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn().Str("user_id", userID).Str("kind", string(event.Kind)).Msg("dropping event for slow subscriber")
		}
	}
}

// Subscribers returns the number of open connections for (userID, role).
func (h *EventHub) Subscribers(userID string, role domain.Role) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[subscriberKey{userID: userID, role: role}])
}

// ServeHTTP handles GET /v1/events. The request must carry an authenticated principal.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		newResponder(h.logger).writeError(r.Context(), w, http.StatusUnauthorized, "AUTH_REQUIRED", errMissingSessionToken)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, eventBuffer), done: make(chan struct{})}
	key := subscriberKey{userID: principal.UserID, role: principal.Role}
	h.register(key, sub)
	logger := h.logger.With().Str("user_id", principal.UserID).Str("role", string(principal.Role)).Logger()
	logger.Debug().Msg("event subscriber connected")

	go h.writeLoop(sub)
	h.readLoop(sub)

	h.unregister(key, sub)
	logger.Debug().Msg("event subscriber disconnected")
}

// Close disconnects every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			sub.close()
		}
	}
}

func (h *EventHub) register(key subscriberKey, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscriber]struct{})
	}
	h.subs[key][sub] = struct{}{}
	metrics.EventSubscribers.Inc()
}

func (h *EventHub) unregister(key subscriberKey, sub *subscriber) {
	sub.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[key][sub]; !ok {
		return
	}
	delete(h.subs[key], sub)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
	metrics.EventSubscribers.Dec()
}

// readLoop discards client messages and returns when the connection closes.
func (h *EventHub) readLoop(sub *subscriber) {
	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(eventPongTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(eventPongTimeout))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer of sub.conn.
func (h *EventHub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				sub.close()
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.close()
				return
			}
		case <-sub.done:
			return
		}
	}
}
