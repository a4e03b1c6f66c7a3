// Package wsbus carries relay messages over websockets: one connection per
// browser tab.
package wsbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Handler receives every decoded message from a tab on its own goroutine.
// ctx ends when the tab disconnects.
type Handler func(ctx context.Context, from relay.Destination, m relay.Message)

type conn struct {
	ws     *websocket.Conn
	dest   relay.Destination
	cancel context.CancelFunc

	writeMu sync.Mutex
}

func (c *conn) write(ctx context.Context, msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(msgType, data)
}

// Hub implements relay.MessageBus for the tabs connected to it.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[relay.TabID]*conn
	handler Handler
}

var _ relay.MessageBus = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Callers authenticate the extension before upgrading.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[relay.TabID]*conn),
	}
}

func (h *Hub) SetHandler(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
}

// ServeWS upgrades the request and serves dest until the connection closes.
// A second connection for the same tab replaces the first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, dest relay.Destination) error {
	if dest.Tab == "" {
		http.Error(w, "missing tab", http.StatusBadRequest)
		return errors.New("wsbus: missing tab id")
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("wsbus: upgrade: %w", err)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, dest: dest, cancel: cancel}

	h.register(c)
	defer h.unregister(c)

	log.Info("tab connected", "tab", dest.Tab, "origin", dest.Origin)
	go h.pingLoop(ctx, c)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !isClosed(err) {
				log.Warn("tab read failed", "tab", dest.Tab, "error", err)
			}
			return nil
		}

		m, err := relay.Decode(data)
		if err != nil {
			log.Warn("dropping malformed message", "tab", dest.Tab, "error", err)
			continue
		}

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()
		if handler == nil {
			log.Warn("no handler for tab message", "tab", dest.Tab, "type", m.Type())
			continue
		}
		go handler(ctx, dest, m)
	}
}

func (h *Hub) Send(ctx context.Context, tab relay.TabID, m relay.Message) error {
	h.mu.RLock()
	c := h.conns[tab]
	h.mu.RUnlock()
	if c == nil {
		return relay.ErrDestinationGone
	}

	b, err := relay.Encode(m)
	if err != nil {
		return err
	}
	if err := c.write(ctx, websocket.TextMessage, b); err != nil {
		if isClosed(err) {
			return fmt.Errorf("%w: %v", relay.ErrDestinationGone, err)
		}
		return fmt.Errorf("wsbus: write to %s: %w", tab, err)
	}
	return nil
}

// Tabs returns the connected tabs ordered by id.
func (h *Hub) Tabs() []relay.Destination {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]relay.Destination, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c.dest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tab < out[j].Tab })
	return out
}

// Close disconnects every tab.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[relay.TabID]*conn)
	h.mu.Unlock()

	for _, c := range conns {
		closeConn(c, websocket.CloseGoingAway, "host shutting down")
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	old := h.conns[c.dest.Tab]
	h.conns[c.dest.Tab] = c
	h.mu.Unlock()

	if old != nil {
		closeConn(old, websocket.ClosePolicyViolation, "replaced by a newer connection")
	}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if h.conns[c.dest.Tab] == c {
		delete(h.conns, c.dest.Tab)
	}
	h.mu.Unlock()

	c.cancel()
	_ = c.ws.Close()
	log.Info("tab disconnected", "tab", c.dest.Tab)
}

func (h *Hub) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(ctx, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeConn(c *conn, code int, reason string) {
	_ = c.write(context.Background(), websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	c.cancel()
	_ = c.ws.Close()
}

// isClosed reports whether err means the peer or we closed the connection.
func isClosed(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.ClosePolicyViolation,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, context.Canceled)
}
