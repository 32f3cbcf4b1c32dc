package livedemo

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Source says which stream an entry came from.
type Source int

const (
	SourceChat Source = iota
	SourceTranscript
)

// Entry is one line of the merged conversation.
type Entry struct {
	Text      string
	Timestamp time.Time
	Speaker   Speaker
	Source    Source
	// SegmentID is set for transcript entries only.
	SegmentID string
	Identity  string

	seq uint64
}

// Placeholder is shown instead of an empty list.
type Placeholder struct {
	Title    string
	Subtitle string
}

// View is the rendered conversation.
type View struct {
	Entries []Entry
	// Empty is true until the first entry arrives; Placeholder is set only then.
	Empty       bool
	Placeholder Placeholder
	// ScrollTo is the index of the newest entry, -1 when empty.
	ScrollTo int
}

// SegmentBatch is one transcription event.
type SegmentBatch struct {
	Segments []TranscriptionSegment
	From     *Participant
}

// Merger keeps chat messages and final transcript segments in one list
// ordered by timestamp, ties broken by arrival.
type Merger struct {
	assistant string

	mu        sync.Mutex
	entries   []Entry
	seq       uint64
	listeners []func(View)
}

// NewMerger creates an empty Merger. assistantName drives speaker attribution
// and the empty-state subtitle.
func NewMerger(assistantName string) *Merger {
	if assistantName == "" {
		assistantName = DefaultAssistantName
	}
	return &Merger{assistant: assistantName}
}

// OnGrow registers fn to be called with the new view whenever an entry is added.
// Overwrites of an existing segment do not grow the list and do not fire.
func (m *Merger) OnGrow(fn func(View)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// AddChat inserts a chat message.
func (m *Merger) AddChat(msg ChatMessage) {
	e := Entry{
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		Speaker:   ClassifySpeaker(msg.From, m.assistant),
		Source:    SourceChat,
	}
	if msg.From != nil {
		e.Identity = msg.From.Identity
	}

	m.mu.Lock()
	m.seq++
	e.seq = m.seq
	m.insertLocked(e)
	v, ls := m.viewLocked(), m.listeners
	m.mu.Unlock()
	notify(ls, v)
}

// AddSegments applies a transcription event. Interim segments are ignored.
// A final segment whose id was already kept replaces that entry's text,
// timestamp and speaker in place of adding another entry. Transcriptions with no
// participant cannot be attributed and are dropped.
func (m *Merger) AddSegments(segs []TranscriptionSegment, from *Participant) {
	if from == nil {
		return
	}
	speaker := ClassifySpeaker(from, m.assistant)
	identity := from.Identity

	m.mu.Lock()
	before := len(m.entries)
	for _, seg := range segs {
		if !seg.Final {
			continue
		}
		e := Entry{
			Text:      seg.Text,
			Timestamp: seg.FirstReceivedTime,
			Speaker:   speaker,
			Source:    SourceTranscript,
			SegmentID: seg.ID,
			Identity:  identity,
		}
		if i := m.findSegmentLocked(seg.ID); i >= 0 {
			e.seq = m.entries[i].seq
			if m.entries[i].Timestamp.Equal(e.Timestamp) {
				m.entries[i] = e
				continue
			}
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			m.insertLocked(e)
			continue
		}
		m.seq++
		e.seq = m.seq
		m.insertLocked(e)
	}
	grew := len(m.entries) > before
	v, ls := m.viewLocked(), m.listeners
	m.mu.Unlock()
	if grew {
		notify(ls, v)
	}
}

// Pump is the single consumer of both streams. It returns when ctx is done
// or both channels are closed.
func (m *Merger) Pump(ctx context.Context, chats <-chan ChatMessage, segs <-chan SegmentBatch) {
	for chats != nil || segs != nil {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-chats:
			if !ok {
				chats = nil
				continue
			}
			m.AddChat(msg)
		case b, ok := <-segs:
			if !ok {
				segs = nil
				continue
			}
			m.AddSegments(b.Segments, b.From)
		}
	}
}

// View returns a copy of the current conversation.
func (m *Merger) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Len returns the number of entries.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Merger) insertLocked(e Entry) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return entryBefore(e, m.entries[i])
	})
	m.entries = append(m.entries, Entry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = e
}

func (m *Merger) findSegmentLocked(id string) int {
	for i := range m.entries {
		if m.entries[i].Source == SourceTranscript && m.entries[i].SegmentID == id {
			return i
		}
	}
	return -1
}

func (m *Merger) viewLocked() View {
	v := View{
		Entries:  append([]Entry(nil), m.entries...),
		ScrollTo: len(m.entries) - 1,
	}
	if len(m.entries) == 0 {
		v.Empty = true
		v.Placeholder = Placeholder{
			Title:    "Conversation started...",
			Subtitle: "Speak or type to interact with " + m.assistant,
		}
	}
	return v
}

func entryBefore(a, b Entry) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.seq < b.seq
}
