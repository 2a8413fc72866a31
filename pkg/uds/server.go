package uds

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"scalper/pkg/exception"
)

// DefaultSocketMode lets the signal producer and the engine run as different
// users of one group.
const DefaultSocketMode os.FileMode = 0o660

const (
	liveDialTimeout = 200 * time.Millisecond
	acceptPoll      = 250 * time.Millisecond
)

// Server owns one signal socket path. It is safe to Close while another
// goroutine is blocked in Accept.
type Server struct {
	path string
	mode os.FileMode

	mu sync.Mutex
	ln *net.UnixListener
}

// NewServer creates a server for path with DefaultSocketMode.
func NewServer(path string) (*Server, error) {
	return NewServerMode(path, DefaultSocketMode)
}

// NewServerMode creates a server whose socket file gets mode after Listen.
// A zero mode leaves the umask result untouched.
func NewServerMode(path string, mode os.FileMode) (*Server, error) {
	if path == "" {
		return nil, exception.ErrEmptyPathUDS
	}
	return &Server{path: path, mode: mode.Perm()}, nil
}

// Path returns the configured socket path.
func (s *Server) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Listen binds the socket. A leftover socket file from a crashed process is
// removed, but one that still answers belongs to a running publisher and is
// left alone.
func (s *Server) Listen() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return exception.ErrAlreadyListeningUDS
	}
	if live(s.path) {
		return exception.ErrSocketInUseUDS
	}
	if err := RemoveIfExists(s.path); err != nil {
		return err
	}
	ln, err := net.ListenUnix(unixNetwork, &net.UnixAddr{Name: s.path, Net: unixNetwork})
	if err != nil {
		return err
	}
	ln.SetUnlinkOnClose(true)
	if s.mode != 0 {
		if err := os.Chmod(s.path, s.mode); err != nil {
			_ = ln.Close()
			return err
		}
	}
	s.ln = ln
	return nil
}

func (s *Server) listener() (*net.UnixListener, error) {
	if s == nil {
		return nil, exception.ErrNilServerUDS
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil, exception.ErrNotListeningUDS
	}
	return s.ln, nil
}

// Accept waits for the next incoming connection.
func (s *Server) Accept() (*net.UnixConn, error) {
	return s.AcceptContext(context.Background())
}

// AcceptContext waits for the next connection until ctx is done or the server
// is closed. A closed server reports net.ErrClosed.
func (s *Server) AcceptContext(ctx context.Context) (*net.UnixConn, error) {
	ln, err := s.listener()
	if err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var deadline time.Time
		if ctx.Done() != nil {
			deadline = time.Now().Add(acceptPoll)
		}
		_ = ln.SetDeadline(deadline)
		conn, err := ln.AcceptUnix()
		if err == nil {
			return conn, nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		return nil, err
	}
}

// Close stops the listener and unlinks the socket file.
func (s *Server) Close() error {
	if s == nil {
		return exception.ErrNilServerUDS
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

// live reports whether something accepts connections on path.
func live(path string) bool {
	conn, err := net.DialTimeout(unixNetwork, path, liveDialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// RemoveIfExists removes the socket file if it exists.
func RemoveIfExists(path string) error {
	if path == "" {
		return exception.ErrEmptyPathUDS
	}
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return exception.ErrPathNotSocketUDS
	}
	return os.Remove(path)
}
