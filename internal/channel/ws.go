package channel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

// WSDialer connects to a WebSocket endpoint carrying one frame per text message.
type WSDialer struct {
	url          string
	header       http.Header
	dialer       websocket.Dialer
	maxFrameSize int
	writeTimeout time.Duration
}

// NewWSDialer creates a dialer for url.
func NewWSDialer(url string, header http.Header, maxFrameSize int) *WSDialer {
	if maxFrameSize <= 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &WSDialer{
		url:    url,
		header: header,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		maxFrameSize: maxFrameSize,
		writeTimeout: 5 * time.Second,
	}
}

// Target returns the endpoint url.
func (d *WSDialer) Target() string {
	return d.url
}

// Dial performs the WebSocket handshake.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	c, resp, err := d.dialer.DialContext(ctx, d.url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket").With("url", d.url)
	}
	c.SetReadLimit(int64(d.maxFrameSize))
	return &wsConn{conn: c, writeTimeout: d.writeTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	wmu          sync.Mutex
}

func (c *wsConn) Read(context.Context) ([]byte, error) {
	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if len(payload) == 0 {
			continue
		}
		return payload, nil
	}
}

func (c *wsConn) Write(_ context.Context, frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}
