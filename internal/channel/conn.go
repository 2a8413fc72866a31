package channel

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/yanun0323/errors"

	"scalper/pkg/exception"
	"scalper/pkg/uds"
)

// Conn is one established transport session carrying whole frames.
type Conn interface {
	// Read blocks until a frame arrives or the connection fails.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens transport sessions.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Target() string
}

// UDSDialer connects to a Unix domain socket carrying newline-delimited frames.
type UDSDialer struct {
	client       *uds.Client
	maxFrameSize int
}

// NewUDSDialer creates a dialer for path.
func NewUDSDialer(path string, maxFrameSize int) (*UDSDialer, error) {
	client, err := uds.NewClient(path)
	if err != nil {
		return nil, err
	}
	return &UDSDialer{client: client, maxFrameSize: maxFrameSize}, nil
}

// Target returns the socket path.
func (d *UDSDialer) Target() string {
	return "unix://" + d.client.Path()
}

// Dial connects to the socket.
func (d *UDSDialer) Dial(ctx context.Context) (Conn, error) {
	c, err := d.client.DialContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "dial uds").With("path", d.client.Path())
	}
	sc := bufio.NewScanner(c)
	max := d.maxFrameSize
	if max <= 0 {
		max = defaultMaxFrameSize
	}
	sc.Buffer(make([]byte, 0, 4096), max)
	return &lineConn{conn: c, scanner: sc}, nil
}

type lineConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	wmu     sync.Mutex
}

func (c *lineConn) Read(context.Context) ([]byte, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, exception.ErrChannelClosed
}

func (c *lineConn) Write(_ context.Context, frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}
