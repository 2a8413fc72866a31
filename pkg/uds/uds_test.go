package uds

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/pkg/exception"
)

func TestEmptyPath(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, exception.ErrEmptyPathUDS)
	_, err = NewServer("")
	assert.ErrorIs(t, err, exception.ErrEmptyPathUDS)
}

func TestRemoveIfExistsRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.ErrorIs(t, RemoveIfExists(path), exception.ErrPathNotSocketUDS)
	assert.NoError(t, RemoveIfExists(filepath.Join(t.TempDir(), "missing")))
}

func TestHubBroadcastAndReceive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.sock")
	srv, err := NewServer(path)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	got := make(chan string, 1)
	hub := NewHub(srv, func(b []byte) { got <- string(b) })
	go func() { _ = hub.Serve() }()
	defer hub.Close()

	cli, err := NewClient(path)
	require.NoError(t, err)
	conn, err := cli.Dial()
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Broadcast([]byte(`{"a":1}`)))

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", line)

	_, err = conn.Write([]byte("pong\n"))
	require.NoError(t, err)
	select {
	case s := <-got:
		assert.Equal(t, "pong", s)
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}
}

func TestListenRefusesLiveSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.sock")
	first, err := NewServer(path)
	require.NoError(t, err)
	require.NoError(t, first.Listen())
	defer first.Close()
	go func() {
		for {
			conn, err := first.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	second, err := NewServer(path)
	require.NoError(t, err)
	assert.ErrorIs(t, second.Listen(), exception.ErrSocketInUseUDS)
	assert.ErrorIs(t, first.Listen(), exception.ErrAlreadyListeningUDS)
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	ln.SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())
	_, err = os.Lstat(path)
	require.NoError(t, err)

	srv, err := NewServerMode(path, 0o600)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	info, err := os.Lstat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, srv.Close())
	_, err = os.Lstat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcceptContextCancel(t *testing.T) {
	srv, err := NewServer(filepath.Join(t.TempDir(), "ctx.sock"))
	require.NoError(t, err)
	_, err = srv.Accept()
	assert.ErrorIs(t, err, exception.ErrNotListeningUDS)
	require.NoError(t, srv.Listen())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = srv.AcceptContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseUnblocksAccept(t *testing.T) {
	srv, err := NewServer(filepath.Join(t.TempDir(), "close.sock"))
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() {
		_, err := srv.Accept()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("accept still blocked after close")
	}
	assert.NoError(t, srv.Close())
}
