package livedemo

import (
	"context"
	"time"
)

// TransportState is a connection signal raised by the realtime layer.
type TransportState int

const (
	TransportConnected TransportState = iota + 1
	TransportDisconnected
)

func (s TransportState) String() string {
	switch s {
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Participant is the metadata the realtime layer attaches to a room member.
type Participant struct {
	Identity string
	Name     string
	IsAgent  bool
}

// ChatMessage is a typed message, final when emitted.
type ChatMessage struct {
	ID        string
	Text      string
	Timestamp time.Time
	From      *Participant
}

// TranscriptionSegment is speech-to-text output. Interim segments have Final == false.
type TranscriptionSegment struct {
	ID                string
	Text              string
	Final             bool
	FirstReceivedTime time.Time
}

// MediaOptions selects which local tracks to publish on connect.
type MediaOptions struct {
	Audio bool
	Video bool
}

// EventSink receives everything the transport emits. Calls may arrive on any goroutine.
type EventSink interface {
	ConnectionStateChanged(state TransportState, err error)
	ChatReceived(msg ChatMessage)
	TranscriptionReceived(segments []TranscriptionSegment, from *Participant)
}

// Transport is the realtime audio/chat layer a Session drives.
type Transport interface {
	// Connect dials the room in cred. It returns once the dial has been
	// accepted; TransportConnected is then reported through sink.
	Connect(ctx context.Context, cred Credential, media MediaOptions, sink EventSink) error
	SetMicrophoneEnabled(enabled bool) error
	// SendChat publishes text and returns the message as the local participant sent it.
	SendChat(ctx context.Context, text string) (ChatMessage, error)
	// Disconnect leaves the room. Calling it when not connected is a no-op.
	Disconnect() error
}
