// Package relay is a development stand-in for the realtime service. It admits
// websocket clients holding a valid join token and relays chat and transcription
// events between members of the same room.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaani-voice/backend/pkg/rtcproto"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// Publisher publishes room events for other relay instances.
type Publisher interface {
	PublishRoomEvent(room string, env rtcproto.Envelope, exclude string) error
}

// Subscriber delivers room events published by any instance, this one included.
type Subscriber interface {
	SubscribeRoom(room string, handler func(env rtcproto.Envelope, exclude string)) (cancel func(), err error)
}

// Hub maintains room -> set of connections.
// With Redis configured, room events are published and the subscription performs
// the local fan-out, so each client receives an event once across instances.
type Hub struct {
	rooms  map[string]map[string]*Client
	subs   map[string]func()
	mu     sync.RWMutex
	logger *zap.Logger
	pub    Publisher
	sub    Subscriber
}

// NewHub creates a hub. pub and sub may both be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[string]*Client),
		subs:   make(map[string]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// Register adds a client to its room. The first local client starts the room subscription.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.Room] == nil {
		h.rooms[c.Room] = make(map[string]*Client)
		if h.sub != nil {
			room := c.Room
			cancel, err := h.sub.SubscribeRoom(room, func(env rtcproto.Envelope, exclude string) {
				h.Broadcast(room, env, exclude)
			})
			if err != nil {
				h.logger.Warn("room subscribe failed", zap.String("room", room), zap.Error(err))
			} else {
				h.subs[room] = cancel
			}
		}
	}
	h.rooms[c.Room][c.ID] = c
	count := len(h.rooms[c.Room])
	h.mu.Unlock()
	h.logger.Debug("participant joined room",
		zap.String("client_id", c.ID),
		zap.String("identity", c.Identity),
		zap.String("room", c.Room),
		zap.Int("members", count))
}

// Unregister removes a client. The last local client cancels the room subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.Room]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.Room)
			if cancel, ok := h.subs[c.Room]; ok {
				cancel()
				delete(h.subs, c.Room)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("participant left room",
		zap.String("client_id", c.ID),
		zap.String("identity", c.Identity),
		zap.String("room", c.Room),
		zap.Duration("stayed", time.Since(c.JoinedAt)))
}

// Broadcast sends env to local clients in room except the one with id exclude.
func (h *Hub) Broadcast(room string, env rtcproto.Envelope, exclude string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[room] {
		if id == exclude {
			continue
		}
		select {
		case c.send <- env:
		default:
			h.logger.Warn("client send buffer full, dropping event",
				zap.String("client_id", id), zap.String("event", env.Event))
		}
	}
}

// Relay fans env out to the room on every instance, skipping the sender.
func (h *Hub) Relay(room string, env rtcproto.Envelope, sender string) {
	if h.pub != nil {
		if err := h.pub.PublishRoomEvent(room, env, sender); err != nil {
			h.logger.Warn("room publish failed, delivering locally", zap.String("room", room), zap.Error(err))
			h.Broadcast(room, env, sender)
		}
		return
	}
	h.Broadcast(room, env, sender)
}

// SendTo sends a single event to one local client.
func (h *Hub) SendTo(c *Client, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- rtcproto.Envelope{Event: event, Data: data}:
	default:
	}
}

// Members returns the number of local clients in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
