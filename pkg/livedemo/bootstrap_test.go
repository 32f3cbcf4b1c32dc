package livedemo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCred = Credential{
	ServerURL:       "ws://relay.test",
	Token:           "tok",
	ParticipantName: "User-7",
	RoomName:        "voice-assistant-demo-42",
}

func serve(t *testing.T, status int, body string) *HTTPFetcher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, connectionDetailsPath, r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewHTTPFetcher(srv.URL+"/", srv.Client())
}

func TestBootstrapStartReady(t *testing.T) {
	body, err := json.Marshal(testCred)
	require.NoError(t, err)
	b := NewBootstrapper(serve(t, http.StatusOK, string(body)), nil)

	var states []BootstrapState
	b.OnChange(func(s BootstrapSnapshot) { states = append(states, s.State) })

	cred, err := b.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCred, cred)

	snap := b.Snapshot()
	assert.Equal(t, BootReady, snap.State)
	require.NotNil(t, snap.Credential)
	assert.Equal(t, testCred, *snap.Credential)
	assert.Equal(t, []BootstrapState{BootLoading, BootReady}, states)
}

func TestBootstrapFailureMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field on 500", http.StatusInternalServerError, `{"error":"Server misconfigured"}`, "Server misconfigured"},
		{"unparseable non-2xx", http.StatusBadGateway, `<html>bad gateway</html>`, "Connection failed (502). Check server logs."},
		{"non-2xx without error field", http.StatusNotFound, `{}`, "Connection failed (404). Check server logs."},
		{"error field on 200", http.StatusOK, `{"error":"Could not generate token"}`, "Could not generate token"},
		{"garbage on 200", http.StatusOK, `not json`, "Could not connect to server"},
		{"missing token on 200", http.StatusOK, `{"serverUrl":"ws://x"}`, "Incomplete connection details"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBootstrapper(serve(t, tt.status, tt.body), nil)
			_, err := b.Start(context.Background())
			require.Error(t, err)
			snap := b.Snapshot()
			assert.Equal(t, BootFailed, snap.State)
			assert.Equal(t, tt.want, snap.Message)
			assert.Nil(t, snap.Credential)
		})
	}
}

func TestBootstrapUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := NewBootstrapper(NewHTTPFetcher(url, nil), nil)
	_, err := b.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Could not connect to server", b.Snapshot().Message)
}

// gateFetcher blocks each Fetch until release is closed and counts calls.
type gateFetcher struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	err     error
}

func newGateFetcher() *gateFetcher {
	return &gateFetcher{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gateFetcher) Fetch(ctx context.Context) (Credential, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.entered <- struct{}{}
	<-g.release
	if g.err != nil {
		return Credential{}, g.err
	}
	return testCred, nil
}

func (g *gateFetcher) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestBootstrapStartWhileLoadingIsNoop(t *testing.T) {
	f := newGateFetcher()
	b := NewBootstrapper(f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := b.Start(context.Background())
		done <- err
	}()
	<-f.entered

	_, err := b.Start(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapBusy)
	_, err = b.Retry(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapBusy)

	close(f.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.count())

	_, err = b.Start(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapBusy, "start while Ready")
	assert.Equal(t, 1, f.count())
}

func TestBootstrapRetryOnlyAfterFailure(t *testing.T) {
	f := &stubFetcher{err: &FetchError{Message: "Server misconfigured"}}
	b := NewBootstrapper(f, nil)

	_, err := b.Retry(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapBusy)

	_, err = b.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, BootFailed, b.Snapshot().State)

	f.set(testCred, nil)
	cred, err := b.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCred, cred)
	assert.Equal(t, BootReady, b.Snapshot().State)
	assert.Equal(t, 2, f.count())
}

func TestBootstrapResetDiscardsInflight(t *testing.T) {
	f := newGateFetcher()
	b := NewBootstrapper(f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := b.Start(context.Background())
		done <- err
	}()
	<-f.entered
	b.Reset()
	close(f.release)

	assert.ErrorIs(t, <-done, ErrBootstrapReset)
	assert.Equal(t, BootIdle, b.Snapshot().State)
}

// stubFetcher returns a fixed result.
type stubFetcher struct {
	mu    sync.Mutex
	cred  Credential
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.cred, s.err
}

func (s *stubFetcher) set(c Credential, err error) {
	s.mu.Lock()
	s.cred, s.err = c, err
	s.mu.Unlock()
}

func (s *stubFetcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
