package livedemo

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// BootstrapState is the credential fetch phase shown to the user.
type BootstrapState int

const (
	BootIdle BootstrapState = iota
	BootLoading
	BootReady
	BootFailed
)

func (s BootstrapState) String() string {
	switch s {
	case BootIdle:
		return "idle"
	case BootLoading:
		return "loading"
	case BootReady:
		return "ready"
	case BootFailed:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrBootstrapBusy is returned when a fetch is already in flight or a credential is held.
	ErrBootstrapBusy = errors.New("livedemo: credential fetch already started")
	// ErrBootstrapReset is returned to a fetch that completed after Reset.
	ErrBootstrapReset = errors.New("livedemo: bootstrap reset during fetch")
)

// BootstrapSnapshot is a point-in-time copy of the Bootstrapper.
type BootstrapSnapshot struct {
	State      BootstrapState
	Credential *Credential
	Message    string
}

// Bootstrapper fetches at most one credential per session attempt.
// Idle -start-> Loading -> Ready | Failed; Failed -retry-> Loading; Reset -> Idle.
type Bootstrapper struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu        sync.Mutex
	state     BootstrapState
	cred      Credential
	message   string
	gen       uint64
	listeners []func(BootstrapSnapshot)
}

// NewBootstrapper creates a Bootstrapper in Idle.
func NewBootstrapper(f Fetcher, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{fetcher: f, logger: logger}
}

// Start fetches a credential if Idle. It blocks until the fetch finishes.
func (b *Bootstrapper) Start(ctx context.Context) (Credential, error) {
	return b.begin(ctx, BootIdle)
}

// Retry fetches again after a failure. Retrying is always an explicit caller action.
func (b *Bootstrapper) Retry(ctx context.Context) (Credential, error) {
	return b.begin(ctx, BootFailed)
}

// Reset returns to Idle and discards any held credential or in-flight result.
func (b *Bootstrapper) Reset() {
	b.mu.Lock()
	changed := b.state != BootIdle
	b.state = BootIdle
	b.cred = Credential{}
	b.message = ""
	b.gen++
	snap, ls := b.snapshotLocked(), b.listeners
	b.mu.Unlock()
	if changed {
		notify(ls, snap)
	}
}

// Snapshot returns the current state.
func (b *Bootstrapper) Snapshot() BootstrapSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// OnChange registers fn to be called after every state change.
func (b *Bootstrapper) OnChange(fn func(BootstrapSnapshot)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

func (b *Bootstrapper) begin(ctx context.Context, from BootstrapState) (Credential, error) {
	b.mu.Lock()
	if b.state != from {
		b.mu.Unlock()
		return Credential{}, ErrBootstrapBusy
	}
	b.state = BootLoading
	b.message = ""
	b.gen++
	gen := b.gen
	snap, ls := b.snapshotLocked(), b.listeners
	b.mu.Unlock()
	notify(ls, snap)

	cred, err := b.fetcher.Fetch(ctx)

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return Credential{}, ErrBootstrapReset
	}
	if err != nil {
		b.state = BootFailed
		b.message = userMessage(err)
		b.logger.Warn("credential fetch failed", zap.Error(err))
	} else {
		b.state = BootReady
		b.cred = cred
	}
	snap, ls = b.snapshotLocked(), b.listeners
	b.mu.Unlock()
	notify(ls, snap)

	if err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (b *Bootstrapper) snapshotLocked() BootstrapSnapshot {
	s := BootstrapSnapshot{State: b.state, Message: b.message}
	if b.state == BootReady {
		c := b.cred
		s.Credential = &c
	}
	return s
}

func userMessage(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return msgUnreachable
}

func notify[T any](ls []func(T), v T) {
	for _, fn := range ls {
		fn(v)
	}
}
