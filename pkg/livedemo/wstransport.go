package livedemo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vaani-voice/backend/pkg/rtcproto"
)

const (
	writeWait = 10 * time.Second
	ackWait   = 5 * time.Second
)

var errAlreadyConnected = errors.New("livedemo: transport already connected")

// WSTransport speaks the relay's JSON protocol over a websocket. Media is not
// carried; the microphone flag is reported to the room as state only.
type WSTransport struct {
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  chan struct{}
	local   Participant
	closing bool
	pending map[string]chan rtcproto.Chat
}

// NewWSTransport creates a transport using websocket.DefaultDialer.
func NewWSTransport(logger *zap.Logger) *WSTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSTransport{
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		pending: make(map[string]chan rtcproto.Chat),
	}
}

// RTCURL builds the websocket address for serverURL, mapping http(s) to ws(s).
func RTCURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + rtcproto.Path
	q := u.Query()
	q.Set(rtcproto.TokenParam, token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect implements Transport.
func (t *WSTransport) Connect(ctx context.Context, cred Credential, media MediaOptions, sink EventSink) error {
	addr, err := RTCURL(cred.ServerURL, cred.Token)
	if err != nil {
		return err
	}
	conn, resp, err := t.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial relay: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial relay: %w", err)
	}

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		_ = conn.Close()
		return errAlreadyConnected
	}
	closed := make(chan struct{})
	t.conn = conn
	t.closed = closed
	t.closing = false
	t.local = Participant{Identity: cred.ParticipantName, Name: cred.ParticipantName}
	t.mu.Unlock()

	go t.readLoop(conn, closed, sink)

	if err := t.write(rtcproto.EventMicrophone, rtcproto.Microphone{Enabled: media.Audio}); err != nil {
		t.logger.Warn("publish microphone state", zap.Error(err))
	}
	return nil
}

// SetMicrophoneEnabled implements Transport.
func (t *WSTransport) SetMicrophoneEnabled(enabled bool) error {
	return t.write(rtcproto.EventMicrophone, rtcproto.Microphone{Enabled: enabled})
}

// SendChat implements Transport. It waits for the relay's acknowledgement and
// returns the message with the relay's timestamp, the one other members see.
func (t *WSTransport) SendChat(ctx context.Context, text string) (ChatMessage, error) {
	id := uuid.NewString()
	ack := make(chan rtcproto.Chat, 1)
	t.mu.Lock()
	local, closed := t.local, t.closed
	t.pending[id] = ack
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.write(rtcproto.EventChat, rtcproto.Chat{ID: id, Message: text}); err != nil {
		return ChatMessage{}, err
	}

	timer := time.NewTimer(ackWait)
	defer timer.Stop()
	select {
	case c := <-ack:
		from := local
		if p := fromWire(c.From); p != nil {
			from = *p
		}
		return ChatMessage{ID: c.ID, Text: c.Message, Timestamp: rtcproto.Time(c.Timestamp), From: &from}, nil
	case <-closed:
		return ChatMessage{}, ErrNotConnected
	case <-timer.C:
		return ChatMessage{}, fmt.Errorf("chat %s not acknowledged", id)
	case <-ctx.Done():
		return ChatMessage{}, ctx.Err()
	}
}

// PublishTranscription sends speech-to-text segments as the local participant.
// Only agent-side clients produce transcription.
func (t *WSTransport) PublishTranscription(segs []TranscriptionSegment) error {
	wire := make([]rtcproto.Segment, 0, len(segs))
	for _, s := range segs {
		wire = append(wire, rtcproto.Segment{
			ID:                s.ID,
			Text:              s.Text,
			Final:             s.Final,
			FirstReceivedTime: rtcproto.Millis(s.FirstReceivedTime),
		})
	}
	return t.write(rtcproto.EventTranscription, rtcproto.Transcription{Segments: wire})
}

// Disconnect implements Transport. It does not wait for the read loop.
func (t *WSTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	t.closing = true
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *WSTransport) write(event string, v interface{}) error {
	env, err := rtcproto.NewEnvelope(event, v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(env)
}

func (t *WSTransport) readLoop(conn *websocket.Conn, closed chan struct{}, sink EventSink) {
	defer close(closed)
	var readErr error
	for {
		var env rtcproto.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			readErr = err
			break
		}
		switch env.Event {
		case rtcproto.EventConnected:
			sink.ConnectionStateChanged(TransportConnected, nil)
		case rtcproto.EventChatSent:
			var c rtcproto.Chat
			if err := json.Unmarshal(env.Data, &c); err != nil {
				t.logger.Debug("bad chat ack payload", zap.Error(err))
				continue
			}
			t.mu.Lock()
			ack := t.pending[c.ID]
			t.mu.Unlock()
			if ack != nil {
				select {
				case ack <- c:
				default:
				}
			}
		case rtcproto.EventChat:
			var c rtcproto.Chat
			if err := json.Unmarshal(env.Data, &c); err != nil {
				t.logger.Debug("bad chat payload", zap.Error(err))
				continue
			}
			sink.ChatReceived(ChatMessage{
				ID:        c.ID,
				Text:      c.Message,
				Timestamp: rtcproto.Time(c.Timestamp),
				From:      fromWire(c.From),
			})
		case rtcproto.EventTranscription:
			var tr rtcproto.Transcription
			if err := json.Unmarshal(env.Data, &tr); err != nil {
				t.logger.Debug("bad transcription payload", zap.Error(err))
				continue
			}
			segs := make([]TranscriptionSegment, 0, len(tr.Segments))
			for _, s := range tr.Segments {
				segs = append(segs, TranscriptionSegment{
					ID:                s.ID,
					Text:              s.Text,
					Final:             s.Final,
					FirstReceivedTime: rtcproto.Time(s.FirstReceivedTime),
				})
			}
			sink.TranscriptionReceived(segs, fromWire(tr.Participant))
		}
	}

	t.mu.Lock()
	local := t.closing
	if t.conn == conn {
		t.conn = nil
		_ = conn.Close()
	}
	t.mu.Unlock()

	if local {
		sink.ConnectionStateChanged(TransportDisconnected, nil)
		return
	}
	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		readErr = nil
	}
	sink.ConnectionStateChanged(TransportDisconnected, readErr)
}

func fromWire(p *rtcproto.Participant) *Participant {
	if p == nil {
		return nil
	}
	return &Participant{Identity: p.Identity, Name: p.Name, IsAgent: p.IsAgent}
}
