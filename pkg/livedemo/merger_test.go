package livedemo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time { return time.Unix(1700000000+int64(sec), 0) }

var (
	agent   = &Participant{Identity: "agent-xyz", Name: "Vaani"}
	visitor = &Participant{Identity: "User-7", Name: "User-7"}
)

func texts(v View) []string {
	out := make([]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		out = append(out, e.Text)
	}
	return out
}

func TestMergerDropsInterimSegments(t *testing.T) {
	m := NewMerger("")
	m.AddChat(ChatMessage{Text: "hi", Timestamp: at(1), From: visitor})
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "hel", Final: false, FirstReceivedTime: at(2)}}, agent)
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "hello", Final: true, FirstReceivedTime: at(3)}}, agent)

	v := m.View()
	require.Len(t, v.Entries, 2)
	assert.Equal(t, "hi", v.Entries[0].Text)
	assert.True(t, v.Entries[0].Timestamp.Equal(at(1)))
	assert.Equal(t, "hello", v.Entries[1].Text)
	assert.True(t, v.Entries[1].Timestamp.Equal(at(3)))
	assert.Equal(t, 1, v.ScrollTo)
}

func TestMergerReemittedSegmentReplaces(t *testing.T) {
	m := NewMerger("")
	m.AddChat(ChatMessage{Text: "hi", Timestamp: at(1), From: visitor})
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "hello", Final: true, FirstReceivedTime: at(3)}}, agent)
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "hello there", Final: true, FirstReceivedTime: at(4)}}, agent)

	v := m.View()
	require.Len(t, v.Entries, 2)
	assert.Equal(t, []string{"hi", "hello there"}, texts(v))
	assert.True(t, v.Entries[1].Timestamp.Equal(at(4)))
}

func TestMergerReemissionMovesWithTimestamp(t *testing.T) {
	m := NewMerger("")
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "first", Final: true, FirstReceivedTime: at(1)}}, agent)
	m.AddChat(ChatMessage{Text: "middle", Timestamp: at(2), From: visitor})
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "first, corrected", Final: true, FirstReceivedTime: at(3)}}, agent)

	assert.Equal(t, []string{"middle", "first, corrected"}, texts(m.View()))
}

func TestMergerEqualTimestampsKeepArrivalOrder(t *testing.T) {
	m := NewMerger("")
	m.AddChat(ChatMessage{Text: "one", Timestamp: at(5), From: visitor})
	m.AddChat(ChatMessage{Text: "two", Timestamp: at(5), From: visitor})
	m.AddSegments([]TranscriptionSegment{{ID: "s", Text: "three", Final: true, FirstReceivedTime: at(5)}}, agent)
	m.AddChat(ChatMessage{Text: "zero", Timestamp: at(4), From: visitor})

	assert.Equal(t, []string{"zero", "one", "two", "three"}, texts(m.View()))
}

func TestMergerEmptyPlaceholder(t *testing.T) {
	v := NewMerger("Vaani").View()
	assert.True(t, v.Empty)
	assert.Empty(t, v.Entries)
	assert.Equal(t, -1, v.ScrollTo)
	assert.Equal(t, "Conversation started...", v.Placeholder.Title)
	assert.Equal(t, "Speak or type to interact with Vaani", v.Placeholder.Subtitle)
}

func TestMergerOnGrowOnlyWhenListGrows(t *testing.T) {
	m := NewMerger("")
	var scrolls []int
	m.OnGrow(func(v View) { scrolls = append(scrolls, v.ScrollTo) })

	m.AddChat(ChatMessage{Text: "hi", Timestamp: at(1)})
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "x", Final: false, FirstReceivedTime: at(2)}}, agent)
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "x", Final: true, FirstReceivedTime: at(2)}}, agent)
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "y", Final: true, FirstReceivedTime: at(2)}}, agent)

	assert.Equal(t, []int{0, 1}, scrolls)
}

func TestMergerSpeakerAttribution(t *testing.T) {
	m := NewMerger("Vaani")
	m.AddChat(ChatMessage{Text: "me", Timestamp: at(1), From: visitor})
	m.AddSegments([]TranscriptionSegment{{ID: "a", Text: "bot", Final: true, FirstReceivedTime: at(2)}}, agent)
	m.AddSegments([]TranscriptionSegment{{ID: "b", Text: "anon", Final: true, FirstReceivedTime: at(3)}}, nil)

	v := m.View()
	require.Len(t, v.Entries, 2, "transcription without a participant is dropped")
	assert.Equal(t, Human, v.Entries[0].Speaker)
	assert.Equal(t, Agent, v.Entries[1].Speaker)
	assert.Equal(t, "agent-xyz", v.Entries[1].Identity)
	assert.Equal(t, SourceTranscript, v.Entries[1].Source)
}

func TestClassifySpeaker(t *testing.T) {
	tests := []struct {
		name string
		p    *Participant
		want Speaker
	}{
		{"nil", nil, Human},
		{"flag", &Participant{Identity: "bot", IsAgent: true}, Agent},
		{"identity", &Participant{Identity: "Voice-AGENT-1"}, Agent},
		{"name", &Participant{Identity: "p1", Name: "vaani assistant"}, Agent},
		{"visitor", &Participant{Identity: "User-12", Name: "User-12"}, Human},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySpeaker(tt.p, "Vaani"))
		})
	}
}

func TestMergerPumpConsumesBothStreams(t *testing.T) {
	m := NewMerger("")
	chats := make(chan ChatMessage)
	segs := make(chan SegmentBatch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Pump(context.Background(), chats, segs)
	}()

	var producers sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		for i := 0; i < 20; i++ {
			chats <- ChatMessage{Text: "c", Timestamp: at(i * 2)}
		}
		close(chats)
	}()
	go func() {
		defer producers.Done()
		for i := 0; i < 20; i++ {
			segs <- SegmentBatch{
				Segments: []TranscriptionSegment{{ID: string(rune('a' + i)), Text: "s", Final: true, FirstReceivedTime: at(i*2 + 1)}},
				From:     agent,
			}
		}
		close(segs)
	}()
	producers.Wait()
	wg.Wait()

	v := m.View()
	require.Len(t, v.Entries, 40)
	for i := 1; i < len(v.Entries); i++ {
		assert.True(t, v.Entries[i-1].Timestamp.Before(v.Entries[i].Timestamp))
	}
}

func TestMergerPumpStopsOnCancel(t *testing.T) {
	m := NewMerger("")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Pump(ctx, make(chan ChatMessage), make(chan SegmentBatch))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pump did not return after cancel")
	}
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", FormatElapsed(0))
	assert.Equal(t, "00:09", FormatElapsed(9))
	assert.Equal(t, "01:05", FormatElapsed(65))
	assert.Equal(t, "100:00", FormatElapsed(6000))
	assert.Equal(t, "00:00", FormatElapsed(-3))
}
