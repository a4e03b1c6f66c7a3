package wsbus

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantumauth-io/wallet-bridge/internal/relay"
)

// Client is the page end of a hub connection. It implements relay.Conn.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

var _ relay.Conn = (*Client)(nil)

// Dial connects to a hub endpoint such as ws://127.0.0.1:8090/relay/ws?tab=1.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsbus: dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("wsbus: dial %s: %w", url, err)
	}
	ws.SetReadLimit(maxMessageSize)
	return &Client{ws: ws}, nil
}

func (c *Client) Send(ctx context.Context, m relay.Message) error {
	b, err := relay.Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

// Receive blocks for the next message. Pings are answered by the
// connection's default handler while it waits. Once ctx ends the connection
// cannot be read again.
func (c *Client) Receive(ctx context.Context) (relay.Message, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		m, err := relay.Decode(data)
		if err != nil {
			continue
		}
		return m, nil
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
