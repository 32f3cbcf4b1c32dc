// Package livedemo is the client side of the voice demo: it fetches a join
// credential, drives one live session over a Transport, and merges chat and
// transcription into a single conversation view.
package livedemo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the session's connection state.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnected
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidTransition = errors.New("livedemo: invalid state transition")
	ErrNotConnected      = errors.New("livedemo: session not connected")
	ErrEmptyMessage      = errors.New("livedemo: empty chat message")
)

type event int

const (
	evReady event = iota
	evTransportConnected
	evTransportDisconnected
	evHangUp
	evFailure
)

func (e event) String() string {
	switch e {
	case evReady:
		return "ready"
	case evTransportConnected:
		return "transport-connected"
	case evTransportDisconnected:
		return "transport-disconnected"
	case evHangUp:
		return "hang-up"
	case evFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// next is the whole transition table.
func next(from State, ev event) (State, error) {
	switch ev {
	case evReady:
		switch from {
		case Idle, Disconnected, Error:
			return Connecting, nil
		}
	case evTransportConnected:
		if from == Connecting {
			return Connected, nil
		}
	case evTransportDisconnected:
		switch from {
		case Connecting:
			return Error, nil
		case Connected:
			return Disconnected, nil
		}
	case evHangUp:
		switch from {
		case Connecting, Connected:
			return Disconnected, nil
		}
	case evFailure:
		switch from {
		case Connecting, Connected:
			return Error, nil
		}
	}
	return from, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev, from)
}

func terminal(s State) bool { return s == Disconnected || s == Error }

// Ticker is the one-second clock driving elapsed time.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	State    State
	Err      error
	Muted    bool
	ChatOpen bool
	Elapsed  int
}

// ElapsedLabel renders Elapsed as mm:ss.
func (s Snapshot) ElapsedLabel() string { return FormatElapsed(s.Elapsed) }

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithTicker replaces the wall-clock ticker.
func WithTicker(fn func(time.Duration) Ticker) SessionOption {
	return func(s *Session) { s.newTicker = fn }
}

// WithAssistantName sets the agent display name used for speaker attribution.
func WithAssistantName(name string) SessionOption {
	return func(s *Session) { s.assistant = name }
}

// Session owns one live conversation at a time: Idle -> Connecting -> Connected ->
// Disconnected, with Error reachable from Connecting or Connected. Every state
// change goes through next. A session may be started again from Disconnected or
// Error; each start fetches a fresh credential and gets a fresh Merger.
type Session struct {
	boot      *Bootstrapper
	transport Transport
	assistant string
	newTicker func(time.Duration) Ticker
	logger    *zap.Logger

	// micMu orders microphone calls; each re-reads muted under mu.
	micMu sync.Mutex

	mu        sync.Mutex
	state     State
	err       error
	muted     bool
	chatOpen  bool
	elapsed   int
	gen       uint64
	tickStop  chan struct{}
	tickDone  chan struct{}
	merger    *Merger
	chats     chan ChatMessage
	segs      chan SegmentBatch
	pumpStop  context.CancelFunc
	pumpDone  chan struct{}
	teardown  chan struct{}
	listeners []func(Snapshot)
}

// NewSession creates an Idle session.
func NewSession(boot *Bootstrapper, t Transport, logger *zap.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		boot:      boot,
		transport: t,
		assistant: DefaultAssistantName,
		newTicker: newRealTicker,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to be called after every state or UI change.
// fn runs on the goroutine that made the change and must not call back into
// the session synchronously.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Merger returns the current conversation, or nil before the first Start.
func (s *Session) Merger() *Merger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merger
}

// Start fetches a credential and connects. It returns once the transport has
// accepted the dial; Connected follows asynchronously. A failed fetch leaves the
// session where it was and the Bootstrapper in BootFailed. If the previous
// session is still tearing down, Start waits for it first.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	_, err := next(s.state, evReady)
	teardown := s.teardown
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if teardown != nil {
		select {
		case <-teardown:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	cred, err := s.boot.Start(ctx)
	if errors.Is(err, ErrBootstrapBusy) {
		cred, err = s.boot.Retry(ctx)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	to, err := next(s.state, evReady)
	if err != nil {
		s.mu.Unlock()
		s.boot.Reset()
		return err
	}
	s.gen++
	gen := s.gen
	s.state = to
	s.err = nil
	s.elapsed = 0
	s.merger = NewMerger(s.assistant)
	s.chats = make(chan ChatMessage, 64)
	s.segs = make(chan SegmentBatch, 64)
	pumpCtx, stop := context.WithCancel(context.Background())
	s.pumpStop = stop
	s.pumpDone = make(chan struct{})
	go func(m *Merger, chats chan ChatMessage, segs chan SegmentBatch, done chan struct{}) {
		defer close(done)
		m.Pump(pumpCtx, chats, segs)
	}(s.merger, s.chats, s.segs, s.pumpDone)
	sink := &sessionSink{s: s, gen: gen, chats: s.chats, segs: s.segs, done: pumpCtx.Done()}
	snap, ls := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(ls, snap)
	s.logger.Info("session connecting", zap.String("room", cred.RoomName), zap.String("participant", cred.ParticipantName))

	if err := s.transport.Connect(ctx, cred, MediaOptions{Audio: true, Video: false}, sink); err != nil {
		s.fire(gen, evFailure, err)
		return fmt.Errorf("connect: %w", err)
	}

	s.mu.Lock()
	stale := s.gen != gen || terminal(s.state)
	s.mu.Unlock()
	if stale {
		_ = s.transport.Disconnect()
	}
	return nil
}

// HangUp ends the session from Connecting or Connected. When it returns the
// ticker and merge pump have stopped and the transport is disconnected.
func (s *Session) HangUp() error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.fire(gen, evHangUp, nil)
}

// SetMuted records the mute toggle. The microphone is switched only while Connected.
func (s *Session) SetMuted(muted bool) error {
	s.mu.Lock()
	s.muted = muted
	snap, ls := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(ls, snap)
	return s.applyMic()
}

// applyMic pushes the current mute flag to the transport if Connected.
func (s *Session) applyMic() error {
	s.micMu.Lock()
	defer s.micMu.Unlock()
	s.mu.Lock()
	connected, enabled := s.state == Connected, !s.muted
	s.mu.Unlock()
	if !connected {
		return nil
	}
	return s.transport.SetMicrophoneEnabled(enabled)
}

// ToggleChat opens or closes the chat overlay while a session is live.
func (s *Session) ToggleChat() (bool, error) {
	s.mu.Lock()
	if s.state != Connecting && s.state != Connected {
		s.mu.Unlock()
		return false, ErrNotConnected
	}
	s.chatOpen = !s.chatOpen
	open := s.chatOpen
	snap, ls := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(ls, snap)
	return open, nil
}

// SendChat publishes a trimmed, non-empty message and adds it to the conversation.
func (s *Session) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	chats, done := s.chats, s.pumpDone
	s.mu.Unlock()

	msg, err := s.transport.SendChat(ctx, text)
	if err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	// The room relays to everyone but the sender, so the local copy goes in here.
	select {
	case chats <- msg:
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// fire applies ev if gen is still the current session. Side effects that block
// or call out (transport, bootstrapper, listeners) run after the lock is released.
func (s *Session) fire(gen uint64, ev event, cause error) error {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s from a previous session", ErrInvalidTransition, ev)
	}
	from := s.state
	to, err := next(from, ev)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = to

	var (
		syncMic   bool
		tickDone  chan struct{}
		teardown  chan struct{}
		pumpDone  chan struct{}
		wasActive = from == Connecting || from == Connected
	)
	if to == Connected {
		s.elapsed = 0
		s.startTickerLocked(gen)
		syncMic = true
	}
	if terminal(to) && wasActive {
		teardown = make(chan struct{})
		s.teardown = teardown
		if to == Error {
			s.err = cause
		}
		tickDone = s.stopTickerLocked()
		s.elapsed = 0
		s.chatOpen = false
		if s.pumpStop != nil {
			s.pumpStop()
			pumpDone = s.pumpDone
		}
	}
	snap, ls := s.snapshotLocked(), s.listeners
	s.mu.Unlock()

	if teardown != nil {
		if tickDone != nil {
			<-tickDone
		}
		if pumpDone != nil {
			<-pumpDone
		}
		if err := s.transport.Disconnect(); err != nil {
			s.logger.Warn("transport disconnect", zap.Error(err))
		}
		s.boot.Reset()
		close(teardown)
	}
	if syncMic {
		if err := s.applyMic(); err != nil {
			s.logger.Warn("apply microphone state", zap.Error(err))
		}
	}

	fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", to), zap.Stringer("event", ev)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.logger.Info("session state", fields...)
	notify(ls, snap)
	return nil
}

func (s *Session) startTickerLocked(gen uint64) {
	stop := make(chan struct{})
	done := make(chan struct{})
	s.tickStop, s.tickDone = stop, done
	t := s.newTicker(time.Second)
	go func() {
		defer close(done)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				s.tick(gen)
			}
		}
	}()
}

func (s *Session) stopTickerLocked() chan struct{} {
	if s.tickStop == nil {
		return nil
	}
	close(s.tickStop)
	done := s.tickDone
	s.tickStop, s.tickDone = nil, nil
	return done
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Connected {
		s.mu.Unlock()
		return
	}
	s.elapsed++
	snap, ls := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(ls, snap)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:    s.state,
		Err:      s.err,
		Muted:    s.muted,
		ChatOpen: s.chatOpen,
		Elapsed:  s.elapsed,
	}
}

// sessionSink adapts transport callbacks to one session generation.
type sessionSink struct {
	s     *Session
	gen   uint64
	chats chan<- ChatMessage
	segs  chan<- SegmentBatch
	done  <-chan struct{}
}

func (k *sessionSink) ConnectionStateChanged(state TransportState, err error) {
	switch state {
	case TransportConnected:
		_ = k.s.fire(k.gen, evTransportConnected, nil)
	case TransportDisconnected:
		_ = k.s.fire(k.gen, evTransportDisconnected, err)
	}
}

func (k *sessionSink) ChatReceived(msg ChatMessage) {
	select {
	case k.chats <- msg:
	case <-k.done:
	}
}

func (k *sessionSink) TranscriptionReceived(segments []TranscriptionSegment, from *Participant) {
	select {
	case k.segs <- SegmentBatch{Segments: segments, From: from}:
	case <-k.done:
	}
}
