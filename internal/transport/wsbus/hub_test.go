package wsbus

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/wallet-bridge/internal/relay"
	"github.com/quantumauth-io/wallet-bridge/internal/rpc"
)

type dispatchFunc func(ctx context.Context, origin string, req rpc.Request) rpc.Response

func (f dispatchFunc) Dispatch(ctx context.Context, origin string, req rpc.Request) rpc.Response {
	return f(ctx, origin, req)
}

func newTestHub(t *testing.T, d relay.Dispatcher) (*Hub, *relay.Relay, string) {
	t.Helper()
	hub := NewHub()
	r := relay.New(d, hub)
	hub.SetHandler(func(ctx context.Context, from relay.Destination, m relay.Message) {
		if err := r.Inbound(ctx, from, m); err != nil {
			t.Logf("inbound: %v", err)
		}
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		_ = hub.ServeWS(w, req, relay.Destination{Tab: relay.TabID(q.Get("tab")), Origin: q.Get("origin")})
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base, tab, origin string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), base+"/?tab="+tab+"&origin="+origin, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTripThroughHub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub, _, base := newTestHub(t, dispatchFunc(func(_ context.Context, origin string, req rpc.Request) rpc.Response {
		b, _ := json.Marshal(origin + " " + req.Method)
		return rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: b}
	}))

	p := relay.NewProvider(dial(t, base, "tab-1", "https://dapp.example"))
	go func() { _ = p.Run(ctx) }()

	raw, err := p.Request(ctx, "eth_chainId")
	require.NoError(t, err)
	var got string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "https://dapp.example eth_chainId", got)

	assert.Equal(t, []relay.Destination{{Tab: "tab-1", Origin: "https://dapp.example"}}, hub.Tabs())
}

func TestEventsReachMatchingTabs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub, r, base := newTestHub(t, dispatchFunc(func(_ context.Context, _ string, req rpc.Request) rpc.Response {
		return rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: json.RawMessage(`null`)}
	}))

	a := dial(t, base, "a", "https://dapp.example")
	b := dial(t, base, "b", "https://other.example")
	require.Eventually(t, func() bool { return len(hub.Tabs()) == 2 }, time.Second, 5*time.Millisecond)

	r.ChainChanged(ctx, "0x89")
	for _, c := range []*Client{a, b} {
		m, err := c.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, relay.ChainChanged{ChainID: "0x89"}, m)
	}

	r.AccountsChanged(ctx, "https://dapp.example", nil)
	m, err := a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.AccountsChanged{Accounts: []common.Address{}}, m)

	short, cancelShort := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancelShort()
	_, err = b.Receive(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendToClosedTab(t *testing.T) {
	hub, _, base := newTestHub(t, dispatchFunc(func(_ context.Context, _ string, req rpc.Request) rpc.Response {
		return rpc.Response{JSONRPC: rpc.Version, ID: req.ID}
	}))

	err := hub.Send(context.Background(), "nobody", relay.ChainChanged{ChainID: "0x1"})
	require.ErrorIs(t, err, relay.ErrDestinationGone)

	c := dial(t, base, "t", "https://dapp.example")
	require.Eventually(t, func() bool { return len(hub.Tabs()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool { return len(hub.Tabs()) == 0 }, time.Second, 5*time.Millisecond)
	err = hub.Send(context.Background(), "t", relay.ChainChanged{ChainID: "0x1"})
	require.ErrorIs(t, err, relay.ErrDestinationGone)
}

func TestTabDisconnectCancelsInFlightRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_, _, base := newTestHub(t, dispatchFunc(func(ctx context.Context, _ string, req rpc.Request) rpc.Response {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return rpc.Response{JSONRPC: rpc.Version, ID: req.ID}
	}))

	c := dial(t, base, "t", "https://dapp.example")
	req, err := rpc.NewRequest(json.RawMessage(`1`), "eth_requestAccounts")
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, relay.ProviderRequest{CorrelationID: "c", Request: req}))

	<-started
	require.NoError(t, c.Close())

	select {
	case <-cancelled:
	case <-ctx.Done():
		t.Fatal("request context was not cancelled")
	}
}

func TestIsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "normal closure", err: &websocket.CloseError{Code: websocket.CloseNormalClosure}, want: true},
		{name: "going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, want: true},
		{name: "abnormal closure", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, want: true},
		{name: "net closed", err: net.ErrClosed, want: true},
		{name: "close sent", err: websocket.ErrCloseSent, want: true},
		{name: "internal error", err: &websocket.CloseError{Code: websocket.CloseInternalServerErr}, want: false},
		{name: "generic", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isClosed(tc.err))
		})
	}
}
