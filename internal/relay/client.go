package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/internal/livekit"
	"github.com/vaani-voice/backend/pkg/response"
	"github.com/vaani-voice/backend/pkg/rtcproto"
)

// TokenVerifier is satisfied by *livekit.Verifier.
type TokenVerifier interface {
	Verify(token string) (*livekit.Claims, error)
}

// Client is one websocket connection admitted to a room.
type Client struct {
	ID       string
	Room     string
	Identity string
	Name     string
	IsAgent  bool
	JoinedAt time.Time

	hub    *Hub
	conn   *websocket.Conn
	send   chan rtcproto.Envelope
	logger *zap.Logger
	now    func() time.Time
}

func (c *Client) participant() *rtcproto.Participant {
	return &rtcproto.Participant{Identity: c.Identity, Name: c.Name, IsAgent: c.IsAgent}
}

// NewUpgrader returns an upgrader accepting the given browser origins.
// "*" or an empty list accepts any; requests without Origin (non-browser) are accepted.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
		},
	}
}

// ServeWs verifies the access token, upgrades, and joins the client to the
// room named in its grant.
func ServeWs(hub *Hub, verifier TokenVerifier, upgrader websocket.Upgrader, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := c.Query(rtcproto.TokenParam)
		if token == "" {
			response.Unauthorized(c, "access_token required")
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		name := claims.Name
		if name == "" {
			name = claims.Identity()
		}
		client := &Client{
			ID:       uuid.New().String(),
			Room:     claims.Video.Room,
			Identity: claims.Identity(),
			Name:     name,
			IsAgent:  claims.Kind == livekit.KindAgent,
			JoinedAt: time.Now(),
			hub:      hub,
			conn:     conn,
			send:     make(chan rtcproto.Envelope, 256),
			logger:   logger,
			now:      time.Now,
		}
		hub.Register(client)
		hub.SendTo(client, rtcproto.EventConnected, rtcproto.Connected{
			Room:        client.Room,
			Participant: *client.participant(),
		})
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg rtcproto.Envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case rtcproto.EventChat:
			var chat rtcproto.Chat
			if err := json.Unmarshal(msg.Data, &chat); err != nil || strings.TrimSpace(chat.Message) == "" {
				continue
			}
			if chat.ID == "" {
				chat.ID = uuid.New().String()
			}
			// Server clock orders messages for every receiver.
			chat.Timestamp = rtcproto.Millis(c.now())
			chat.From = c.participant()
			c.hub.SendTo(c, rtcproto.EventChatSent, chat)
			c.relay(rtcproto.EventChat, chat)
		case rtcproto.EventTranscription:
			var tr rtcproto.Transcription
			if err := json.Unmarshal(msg.Data, &tr); err != nil || len(tr.Segments) == 0 {
				continue
			}
			tr.Participant = c.participant()
			c.relay(rtcproto.EventTranscription, tr)
		case rtcproto.EventMicrophone:
			var mic rtcproto.Microphone
			if err := json.Unmarshal(msg.Data, &mic); err == nil {
				c.logger.Debug("microphone state",
					zap.String("identity", c.Identity), zap.Bool("enabled", mic.Enabled))
			}
		default:
			// ignore
		}
	}
}

func (c *Client) relay(event string, payload interface{}) {
	env, err := rtcproto.NewEnvelope(event, payload)
	if err != nil {
		return
	}
	c.hub.Relay(c.Room, env, c.ID)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
