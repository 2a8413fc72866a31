package uds

import (
	"bufio"
	"context"
	"net"
	"sync"
)

// Hub accepts connections on a server and fans newline-delimited frames out to all of them.
type Hub struct {
	srv     *Server
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	onFrame func([]byte)
	wg      sync.WaitGroup
}

// NewHub wraps a listening server. onFrame receives every line read from any client.
func NewHub(srv *Server, onFrame func([]byte)) *Hub {
	return &Hub{srv: srv, conns: make(map[net.Conn]struct{}), onFrame: onFrame}
}

// Serve accepts clients until the server is closed.
func (h *Hub) Serve() error {
	return h.ServeContext(context.Background())
}

// ServeContext accepts clients until ctx is done or the server is closed.
func (h *Hub) ServeContext(ctx context.Context) error {
	for {
		conn, err := h.srv.AcceptContext(ctx)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.conns[conn] = struct{}{}
		h.mu.Unlock()
		h.wg.Add(1)
		go h.read(conn)
	}
}

func (h *Hub) read(conn net.Conn) {
	defer h.wg.Done()
	defer h.drop(conn)
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		if h.onFrame == nil {
			continue
		}
		line := make([]byte, len(sc.Bytes()))
		copy(line, sc.Bytes())
		h.onFrame(line)
	}
}

func (h *Hub) drop(conn net.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast writes payload plus a newline to every client and returns how many received it.
func (h *Hub) Broadcast(payload []byte) int {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, payload...)
	frame = append(frame, '\n')

	h.mu.Lock()
	conns := make([]net.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	sent := 0
	for _, c := range conns {
		if _, err := c.Write(frame); err != nil {
			h.drop(c)
			continue
		}
		sent++
	}
	return sent
}

// Close closes the server and every client, then waits for readers to exit.
func (h *Hub) Close() error {
	err := h.srv.Close()
	h.mu.Lock()
	for c := range h.conns {
		_ = c.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
	return err
}
