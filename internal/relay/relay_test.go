package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaani-voice/backend/internal/livekit"
	"github.com/vaani-voice/backend/pkg/livedemo"
	"github.com/vaani-voice/backend/pkg/rtcproto"
)

const (
	apiKey    = "devkey"
	apiSecret = "devsecret"
	room      = "voice-assistant-demo-77"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRelay(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(nil, nil, nil)
	r := gin.New()
	r.GET(rtcproto.Path, ServeWs(hub, livekit.NewVerifier(apiKey, apiSecret), NewUpgrader([]string{"*"}), nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func sign(t *testing.T, c *livekit.Claims) string {
	t.Helper()
	tok, err := livekit.NewHMACSigner(apiSecret).Sign(c)
	require.NoError(t, err)
	return tok
}

// recorder is an EventSink that keeps everything it is given.
type recorder struct {
	mu        sync.Mutex
	connected bool
	chats     []livedemo.ChatMessage
	segs      []livedemo.TranscriptionSegment
}

func (r *recorder) ConnectionStateChanged(s livedemo.TransportState, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = s == livedemo.TransportConnected
}

func (r *recorder) ChatReceived(m livedemo.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = append(r.chats, m)
}

func (r *recorder) TranscriptionReceived(segs []livedemo.TranscriptionSegment, _ *livedemo.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segs = append(r.segs, segs...)
}

func (r *recorder) isConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *recorder) chatCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chats)
}

type fixedFetcher struct{ cred livedemo.Credential }

func (f fixedFetcher) Fetch(context.Context) (livedemo.Credential, error) { return f.cred, nil }

func TestRelayVisitorAndAgentConversation(t *testing.T) {
	srv, hub := newRelay(t)
	now := time.Now()

	visitorCred := livedemo.Credential{
		ServerURL:       srv.URL,
		Token:           sign(t, livekit.NewJoinClaims(apiKey, "User-1", room, now, time.Minute)),
		ParticipantName: "User-1",
		RoomName:        room,
	}
	session := livedemo.NewSession(
		livedemo.NewBootstrapper(fixedFetcher{cred: visitorCred}, nil),
		livedemo.NewWSTransport(nil),
		nil,
	)
	require.NoError(t, session.Start(context.Background()))
	require.Eventually(t, func() bool { return session.Snapshot().State == livedemo.Connected },
		2*time.Second, 5*time.Millisecond)

	agentSink := &recorder{}
	agent := livedemo.NewWSTransport(nil)
	agentCred := livedemo.Credential{
		ServerURL: srv.URL,
		Token:     sign(t, livekit.NewAgentClaims(apiKey, "agent-1", "Vaani", room, now, time.Minute)),
	}
	require.NoError(t, agent.Connect(context.Background(), agentCred, livedemo.MediaOptions{Audio: true}, agentSink))
	defer agent.Disconnect()
	require.Eventually(t, agentSink.isConnected, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Members(room) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, session.SendChat(context.Background(), "hello"))
	require.Eventually(t, func() bool { return agentSink.chatCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	agentSink.mu.Lock()
	got := agentSink.chats[0]
	agentSink.mu.Unlock()
	assert.Equal(t, "hello", got.Text)
	require.NotNil(t, got.From)
	assert.Equal(t, "User-1", got.From.Identity)

	spoke := time.Now().Add(time.Second)
	require.NoError(t, agent.PublishTranscription([]livedemo.TranscriptionSegment{
		{ID: "seg-1", Text: "Hi th", Final: false, FirstReceivedTime: spoke},
	}))
	require.NoError(t, agent.PublishTranscription([]livedemo.TranscriptionSegment{
		{ID: "seg-1", Text: "Hi there, I'm Vaani.", Final: true, FirstReceivedTime: spoke},
	}))

	m := session.Merger()
	require.Eventually(t, func() bool { return m.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	v := m.View()
	assert.Equal(t, "hello", v.Entries[0].Text)
	assert.Equal(t, livedemo.Human, v.Entries[0].Speaker)
	assert.True(t, v.Entries[0].Timestamp.Equal(got.Timestamp),
		"sender's copy carries the relay timestamp: local %v, agent saw %v", v.Entries[0].Timestamp, got.Timestamp)
	assert.Equal(t, "Hi there, I'm Vaani.", v.Entries[1].Text)
	assert.Equal(t, livedemo.Agent, v.Entries[1].Speaker)

	require.NoError(t, session.HangUp())
	assert.Equal(t, livedemo.Disconnected, session.Snapshot().State)
	require.Eventually(t, func() bool { return hub.Members(room) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRelayRejectsBadTokens(t *testing.T) {
	srv, _ := newRelay(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing", ""},
		{"garbage", "?access_token=nope"},
		{"wrong secret", "?access_token=" + func() string {
			tok, err := livekit.NewHMACSigner("other").Sign(livekit.NewJoinClaims(apiKey, "User-1", room, time.Now(), time.Minute))
			require.NoError(t, err)
			return tok
		}()},
		{"expired", "?access_token=" + sign(t, livekit.NewJoinClaims(apiKey, "User-1", room, time.Now().Add(-time.Hour), time.Minute))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + rtcproto.Path + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRelayIsolatesRooms(t *testing.T) {
	srv, _ := newRelay(t)
	now := time.Now()

	a, b := &recorder{}, &recorder{}
	ta, tb := livedemo.NewWSTransport(nil), livedemo.NewWSTransport(nil)
	require.NoError(t, ta.Connect(context.Background(), livedemo.Credential{
		ServerURL: srv.URL, Token: sign(t, livekit.NewJoinClaims(apiKey, "User-1", "room-a", now, time.Minute)),
	}, livedemo.MediaOptions{Audio: true}, a))
	defer ta.Disconnect()
	require.NoError(t, tb.Connect(context.Background(), livedemo.Credential{
		ServerURL: srv.URL, Token: sign(t, livekit.NewJoinClaims(apiKey, "User-2", "room-b", now, time.Minute)),
	}, livedemo.MediaOptions{Audio: true}, b))
	defer tb.Disconnect()
	require.Eventually(t, func() bool { return a.isConnected() && b.isConnected() }, 2*time.Second, 5*time.Millisecond)

	_, err := ta.SendChat(context.Background(), "only room a")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, b.chatCount())
	assert.Equal(t, 0, a.chatCount(), "sender does not receive its own chat")
}

func TestRTCURL(t *testing.T) {
	u, err := livedemo.RTCURL("https://demo.example/base/", "a b")
	require.NoError(t, err)
	assert.Equal(t, "wss://demo.example/base/rtc?access_token=a+b", u)

	_, err = livedemo.RTCURL("ftp://x", "t")
	assert.Error(t, err)
}
