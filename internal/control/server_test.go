package control

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/verte-zerg/wlsplit/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTarget struct {
	mu  sync.Mutex
	log []Command
}

func (f *fakeTarget) record(c Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, c)
	return true
}

func (f *fakeTarget) Start() bool { return f.record(Start) }
func (f *fakeTarget) Split() bool { return f.record(Split) }
func (f *fakeTarget) Skip() bool  { return f.record(Skip) }
func (f *fakeTarget) Pause() bool { return f.record(Pause) }
func (f *fakeTarget) Reset() bool { return f.record(Reset) }
func (f *fakeTarget) Quit() bool  { return f.record(Quit) }

func (f *fakeTarget) calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.log...)
}

func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "wls")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "ctl.sock")
}

func startServer(t *testing.T, target Target, opts ...ServerOption) (*Server, context.CancelFunc) {
	t.Helper()
	srv, err := Listen(socketPath(t), target, opts...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return srv, cancel
}

func rawSend(t *testing.T, path, payload string) {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func waitCalls(t *testing.T, target *fakeTarget, n int) []Command {
	t.Helper()
	require.Eventually(t, func() bool { return len(target.calls()) >= n }, 2*time.Second, 5*time.Millisecond)
	return target.calls()
}

func TestServerAppliesCommandsInOrder(t *testing.T) {
	t.Parallel()

	target := &fakeTarget{}
	srv, _ := startServer(t, target)

	ctx := context.Background()
	for _, c := range []Command{Start, Split, Pause, Pause, Skip, Reset} {
		require.NoError(t, Send(ctx, srv.Path(), c))
	}
	assert.Equal(t, []Command{Start, Split, Pause, Pause, Skip, Reset}, waitCalls(t, target, 6))
}

func TestServerDropsProtocolErrors(t *testing.T) {
	t.Parallel()

	target := &fakeTarget{}
	srv, _ := startServer(t, target)

	rawSend(t, srv.Path(), "SPLIT\n")
	rawSend(t, srv.Path(), "split twice\n")
	rawSend(t, srv.Path(), "")
	rawSend(t, srv.Path(), string(make([]byte, 200)))
	rawSend(t, srv.Path(), "split\n")

	assert.Equal(t, []Command{Split}, waitCalls(t, target, 1))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, target.calls(), 1)
}

func TestServerConcurrentSendsAllApplied(t *testing.T) {
	t.Parallel()

	target := &fakeTarget{}
	srv, _ := startServer(t, target)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, Send(context.Background(), srv.Path(), Split))
		}()
	}
	wg.Wait()
	assert.Len(t, waitCalls(t, target, n), n)
}

func TestServerQuitCallback(t *testing.T) {
	t.Parallel()

	target := &fakeTarget{}
	quit := make(chan struct{})
	var once sync.Once
	srv, _ := startServer(t, target, WithQuit(func() { once.Do(func() { close(quit) }) }))

	require.NoError(t, Send(context.Background(), srv.Path(), Quit))
	select {
	case <-quit:
	case <-time.After(2 * time.Second):
		t.Fatal("quit callback not invoked")
	}
	assert.Equal(t, []Command{Quit}, target.calls())
}

func TestServerRemovesSocketOnShutdown(t *testing.T) {
	t.Parallel()

	srv, err := Listen(socketPath(t), &fakeTarget{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	_, err = os.Stat(srv.Path())
	require.NoError(t, err)
	cancel()
	require.NoError(t, <-done)
	_, err = os.Stat(srv.Path())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, srv.Close())
}

func TestListenReplacesStaleSocket(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	// Leave the socket file behind as a crashed process would.
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	srv, err := Listen(path, &fakeTarget{})
	require.NoError(t, err)
	assert.NoError(t, srv.Close())
}

func TestListenRefusesLiveSocket(t *testing.T) {
	t.Parallel()

	first, _ := startServer(t, &fakeTarget{})
	_, err := Listen(first.Path(), &fakeTarget{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestListenRefusesRegularFile(t *testing.T) {
	t.Parallel()

	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	_, err := Listen(path, &fakeTarget{})
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestSendWithoutServer(t *testing.T) {
	t.Parallel()

	err := Send(context.Background(), socketPath(t), Start)
	assert.Error(t, err)
}
