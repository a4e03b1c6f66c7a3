package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/rpc"
)

var ErrProviderClosed = errors.New("relay: provider closed")

// Conn is one page's link to the host.
type Conn interface {
	Send(ctx context.Context, m Message) error
	Receive(ctx context.Context) (Message, error)
}

// Event names follow EIP-1193.
type Event string

const (
	EventAccountsChanged Event = "accountsChanged"
	EventChainChanged    Event = "chainChanged"
)

// Provider is the page side of the relay. Responses are matched to calls by
// correlation id, so calls may complete in any order.
type Provider struct {
	conn   Conn
	nextID atomic.Int64

	mu        sync.Mutex
	waiters   map[string]chan rpc.Response
	listeners map[Event][]func(Message)
	selected  *common.Address
	chainID   string
	done      chan struct{}
	closeErr  error
}

func NewProvider(conn Conn) *Provider {
	return &Provider{
		conn:      conn,
		waiters:   make(map[string]chan rpc.Response),
		listeners: make(map[Event][]func(Message)),
		done:      make(chan struct{}),
	}
}

// Run reads from the connection until it fails or ctx ends. Pending calls
// fail with the read error.
func (p *Provider) Run(ctx context.Context) error {
	for {
		m, err := p.conn.Receive(ctx)
		if err != nil {
			p.close(err)
			return err
		}
		p.handle(m)
	}
}

func (p *Provider) handle(m Message) {
	switch v := m.(type) {
	case ProviderResponse:
		p.mu.Lock()
		ch, ok := p.waiters[v.CorrelationID]
		delete(p.waiters, v.CorrelationID)
		p.mu.Unlock()
		if !ok {
			log.Warn("response for unknown call", "correlationId", v.CorrelationID)
			return
		}
		ch <- v.Response
	case AccountsChanged:
		p.setAccounts(v.Accounts)
		p.emit(EventAccountsChanged, v)
	case ChainChanged:
		p.mu.Lock()
		p.chainID = v.ChainID
		p.mu.Unlock()
		p.emit(EventChainChanged, v)
	default:
		log.Warn("unexpected message from host", "type", m.Type())
	}
}

// Request sends a call and waits for its response. An error response is
// returned as *rpc.Error.
func (p *Provider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	id := json.RawMessage(strconv.FormatInt(p.nextID.Add(1), 10))
	req, err := rpc.NewRequest(id, method, params...)
	if err != nil {
		return nil, err
	}

	corr := uuid.NewString()
	ch := make(chan rpc.Response, 1)

	p.mu.Lock()
	if p.closeErr != nil {
		p.mu.Unlock()
		return nil, ErrProviderClosed
	}
	p.waiters[corr] = ch
	p.mu.Unlock()

	if err := p.conn.Send(ctx, ProviderRequest{CorrelationID: corr, Request: req}); err != nil {
		p.forget(corr)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		p.observe(method, resp.Result)
		return resp.Result, nil
	case <-ctx.Done():
		p.forget(corr)
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrProviderClosed
	}
}

// On registers fn for event. Listeners run on the read goroutine.
func (p *Provider) On(event Event, fn func(Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[event] = append(p.listeners[event], fn)
}

// SelectedAddress is the first account last reported to the page.
func (p *Provider) SelectedAddress() (common.Address, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected == nil {
		return common.Address{}, false
	}
	return *p.selected, true
}

func (p *Provider) ChainID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

// observe keeps local state in step with account and chain queries.
func (p *Provider) observe(method string, result json.RawMessage) {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		var accounts []common.Address
		if json.Unmarshal(result, &accounts) == nil {
			p.setAccounts(accounts)
		}
	case "eth_chainId":
		var id string
		if json.Unmarshal(result, &id) == nil {
			p.mu.Lock()
			p.chainID = id
			p.mu.Unlock()
		}
	}
}

func (p *Provider) setAccounts(accounts []common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(accounts) == 0 {
		p.selected = nil
		return
	}
	a := accounts[0]
	p.selected = &a
}

func (p *Provider) emit(event Event, m Message) {
	p.mu.Lock()
	fns := append([]func(Message){}, p.listeners[event]...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (p *Provider) forget(corr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiters, corr)
}

func (p *Provider) close(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeErr != nil {
		return
	}
	p.closeErr = err
	p.waiters = make(map[string]chan rpc.Response)
	close(p.done)
}
