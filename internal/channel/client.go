package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"scalper/internal/bus"
	"scalper/internal/codec"
	"scalper/internal/schema"
	"scalper/pkg/exception"
)

const (
	defaultInboundSize  = 256
	defaultOutboundSize = 16
	defaultMaxFrameSize = 64 << 10
)

// Config defines the client runtime configuration.
type Config struct {
	InboundSize  int
	OutboundSize int
	Backoff      Backoff
	// OnReply receives every heartbeat reply on the polling goroutine.
	OnReply func(reply schema.HeartbeatReply, at time.Time)
}

type inboundFrame struct {
	payload []byte
	at      time.Time
}

// Stats is a point-in-time view of client counters.
type Stats struct {
	Connected      bool
	Received       uint64
	Dropped        uint64
	DecodeFailures uint64
	Reconnects     uint64
}

// Client receives signals and sends heartbeats over a reconnecting transport.
// Run owns the connection; Poll and SendHeartbeat never block.
type Client struct {
	cfg      Config
	dialer   Dialer
	inbound  *bus.Queue[inboundFrame]
	outbound *bus.Queue[[]byte]
	now      func() time.Time

	connected      atomic.Bool
	received       atomic.Uint64
	dropped        atomic.Uint64
	decodeFailures atomic.Uint64
	reconnects     atomic.Uint64
	sessions       atomic.Uint64
}

// NewClient validates config and builds a client.
func NewClient(cfg Config, dialer Dialer) (*Client, error) {
	if dialer == nil {
		return nil, exception.ErrChannelNilDialer
	}
	if cfg.InboundSize <= 0 {
		cfg.InboundSize = defaultInboundSize
	}
	if cfg.OutboundSize <= 0 {
		cfg.OutboundSize = defaultOutboundSize
	}
	if cfg.Backoff.isZero() {
		cfg.Backoff = DefaultBackoff()
	}
	return &Client{
		cfg:      cfg,
		dialer:   dialer,
		inbound:  bus.NewQueue[inboundFrame](cfg.InboundSize),
		outbound: bus.NewQueue[[]byte](cfg.OutboundSize),
		now:      time.Now,
	}, nil
}

// Connected reports whether a session is established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Stats returns the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:      c.connected.Load(),
		Received:       c.received.Load(),
		Dropped:        c.dropped.Load(),
		DecodeFailures: c.decodeFailures.Load(),
		Reconnects:     c.reconnects.Load(),
	}
}

// Poll returns the oldest pending signal, if any. Heartbeat replies and
// undecodable frames encountered on the way are consumed.
func (c *Client) Poll() (schema.Signal, bool) {
	for {
		frame, ok := c.inbound.TryPop()
		if !ok {
			return schema.Signal{}, false
		}
		msg, err := codec.Decode(frame.payload, frame.at)
		if err != nil {
			if errors.Is(err, exception.ErrSignalHold) {
				logs.Debugf("hold signal ignored")
				continue
			}
			c.decodeFailures.Add(1)
			logs.Warnf("decode inbound frame, err: %+v, payload: %s", err, truncate(frame.payload))
			continue
		}
		switch msg.Kind {
		case codec.KindSignal:
			return msg.Signal, true
		case codec.KindHeartbeatReply:
			if c.cfg.OnReply != nil {
				c.cfg.OnReply(msg.Reply, frame.at)
			}
		}
	}
}

// SendHeartbeat queues a heartbeat for the writer. It fails fast when the
// channel is down or the outbound queue is full.
func (c *Client) SendHeartbeat(hb schema.Heartbeat) error {
	if !c.connected.Load() {
		return exception.ErrChannelNotConnected
	}
	payload, err := codec.EncodeHeartbeat(hb)
	if err != nil {
		return err
	}
	if err := c.outbound.TryPublish(payload); err != nil {
		if errors.Is(err, exception.ErrStorageQueueFull) {
			return exception.ErrChannelBusy
		}
		return exception.ErrChannelClosed
	}
	return nil
}

// Run keeps a session open until ctx is done, reconnecting with backoff.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			attempt++
			logs.Warnf("connect signal channel %s, attempt: %d, err: %+v", c.dialer.Target(), attempt, err)
			c.sleepBackoff(ctx, attempt)
			continue
		}

		if c.sessions.Add(1) > 1 {
			c.reconnects.Add(1)
		}
		attempt = 0
		c.outbound.Drain()
		c.connected.Store(true)
		logs.Infof("signal channel connected: %s", c.dialer.Target())

		err = c.runSession(ctx, conn)
		c.connected.Store(false)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.outbound.Closed() {
			return nil
		}
		logs.Warnf("signal channel session ended, err: %+v", err)
		attempt++
		c.sleepBackoff(ctx, attempt)
	}
}

func (c *Client) runSession(ctx context.Context, conn Conn) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go c.readLoop(sessionCtx, conn, errCh)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return ctx.Err()
		case err := <-errCh:
			return err
		case frame, ok := <-c.outbound.Chan():
			if !ok {
				return exception.ErrChannelClosed
			}
			if err := conn.Write(sessionCtx, frame); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn, errCh chan<- error) {
	for {
		payload, err := conn.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		c.received.Add(1)
		if err := c.inbound.TryPublish(inboundFrame{payload: payload, at: c.now()}); err != nil {
			c.dropped.Add(1)
			logs.Warnf("inbound queue full, frame dropped")
		}
	}
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) {
	timer := time.NewTimer(c.cfg.Backoff.Next(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Close stops accepting heartbeats.
func (c *Client) Close() {
	c.outbound.Close()
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
