package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/rpc"
)

// ErrDestinationGone is returned by a MessageBus when the tab has closed.
var ErrDestinationGone = errors.New("relay: destination gone")

type TabID string

// Destination is a connected tab and the origin of the page it shows.
type Destination struct {
	Tab    TabID  `json:"tab"`
	Origin string `json:"origin"`
}

type MessageBus interface {
	Send(ctx context.Context, tab TabID, m Message) error
	Tabs() []Destination
}

// Dispatcher is the part of *rpc.Dispatcher the relay needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, origin string, req rpc.Request) rpc.Response
}

// Relay forwards tab requests to the dispatcher and fans events out to tabs.
// It implements rpc.Notifier.
type Relay struct {
	d   Dispatcher
	bus MessageBus
}

var _ rpc.Notifier = (*Relay)(nil)

func New(d Dispatcher, bus MessageBus) *Relay {
	return &Relay{d: d, bus: bus}
}

// Inbound handles one message from a tab. Only provider requests are
// accepted. It blocks until the request is answered, so callers run it on
// its own goroutine.
func (r *Relay) Inbound(ctx context.Context, from Destination, m Message) error {
	req, ok := m.(ProviderRequest)
	if !ok {
		return fmt.Errorf("%w: %s from tab", ErrUnknownMessage, m.Type())
	}

	resp := r.d.Dispatch(ctx, from.Origin, req.Request)

	out := ProviderResponse{CorrelationID: req.CorrelationID, Response: resp}
	err := r.bus.Send(ctx, from.Tab, out)
	if errors.Is(err, ErrDestinationGone) {
		log.Warn("dropping response for closed tab", "tab", from.Tab, "method", req.Request.Method)
		return nil
	}
	return err
}

// AccountsChanged goes to tabs showing origin, or to every tab when origin
// is empty.
func (r *Relay) AccountsChanged(ctx context.Context, origin string, accounts []common.Address) {
	want := permissions.NormalizeOrigin(origin)
	msg := AccountsChanged{Accounts: accounts}
	for _, dest := range r.bus.Tabs() {
		if want != "" && permissions.NormalizeOrigin(dest.Origin) != want {
			continue
		}
		r.push(ctx, dest, msg)
	}
}

func (r *Relay) ChainChanged(ctx context.Context, chainID string) {
	msg := ChainChanged{ChainID: chainID}
	for _, dest := range r.bus.Tabs() {
		r.push(ctx, dest, msg)
	}
}

// push ignores failures; a tab that cannot be reached picks up state on its
// next request.
func (r *Relay) push(ctx context.Context, dest Destination, m Message) {
	if err := r.bus.Send(ctx, dest.Tab, m); err != nil && !errors.Is(err, ErrDestinationGone) {
		log.Warn("event push failed", "tab", dest.Tab, "type", m.Type(), "error", err)
	}
}
