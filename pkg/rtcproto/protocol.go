// Package rtcproto is the JSON envelope spoken on /rtc between the dev relay
// and demo clients. Timestamps are unix milliseconds.
package rtcproto

import (
	"encoding/json"
	"time"
)

// Event names.
const (
	// server -> client
	EventConnected = "connected"
	// EventChatSent returns the sender's chat as stamped by the relay.
	EventChatSent = "chat_sent"
	// both directions
	EventChat          = "chat"
	EventTranscription = "transcription"
	// client -> server
	EventMicrophone = "microphone"
)

// Path is where the relay accepts websocket upgrades.
const Path = "/rtc"

// TokenParam is the query parameter carrying the access token.
const TokenParam = "access_token"

// Envelope wraps every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals v as the envelope data.
func NewEnvelope(event string, v interface{}) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Participant identifies a room member.
type Participant struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	IsAgent  bool   `json:"isAgent,omitempty"`
}

// Connected is sent once the relay has admitted the client to its room.
type Connected struct {
	Room        string      `json:"room"`
	Participant Participant `json:"participant"`
}

// Chat is a finalized typed message.
type Chat struct {
	ID        string       `json:"id"`
	Message   string       `json:"message"`
	Timestamp int64        `json:"timestamp"`
	From      *Participant `json:"from,omitempty"`
}

// Segment is one unit of speech-to-text output.
type Segment struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	Final             bool   `json:"final"`
	FirstReceivedTime int64  `json:"firstReceivedTime"`
}

// Transcription carries segments spoken by one participant.
type Transcription struct {
	Segments    []Segment    `json:"segments"`
	Participant *Participant `json:"participant,omitempty"`
}

// Microphone reports the sender's capture state.
type Microphone struct {
	Enabled bool `json:"enabled"`
}

// Millis converts t to the wire timestamp.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// Time converts a wire timestamp back to time.Time.
func Time(ms int64) time.Time { return time.UnixMilli(ms) }
