// Package relay carries provider traffic between browser tabs and the
// dispatcher, and pushes provider events back to the tabs.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/wallet-bridge/internal/rpc"
)

var ErrUnknownMessage = errors.New("relay: unknown message type")

type Type string

const (
	TypeProviderRequest  Type = "provider_request"
	TypeProviderResponse Type = "provider_response"
	TypeAccountsChanged  Type = "accounts_changed"
	TypeChainChanged     Type = "chain_changed"
)

// Message is one of ProviderRequest, ProviderResponse, AccountsChanged or
// ChainChanged. The set is closed.
type Message interface {
	Type() Type
	sealed()
}

type ProviderRequest struct {
	CorrelationID string      `json:"correlationId"`
	Request       rpc.Request `json:"request"`
}

type ProviderResponse struct {
	CorrelationID string       `json:"correlationId"`
	Response      rpc.Response `json:"response"`
}

type AccountsChanged struct {
	Accounts []common.Address `json:"accounts"`
}

type ChainChanged struct {
	ChainID string `json:"chainId"`
}

func (ProviderRequest) Type() Type  { return TypeProviderRequest }
func (ProviderResponse) Type() Type { return TypeProviderResponse }
func (AccountsChanged) Type() Type  { return TypeAccountsChanged }
func (ChainChanged) Type() Type     { return TypeChainChanged }

func (ProviderRequest) sealed()  {}
func (ProviderResponse) sealed() {}
func (AccountsChanged) sealed()  {}
func (ChainChanged) sealed()     {}

// Envelope is the wire form of a Message.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case ProviderRequest, ProviderResponse, ChainChanged:
		return encode(v.Type(), v)
	case AccountsChanged:
		if v.Accounts == nil {
			v.Accounts = []common.Address{}
		}
		return encode(v.Type(), v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

func encode(t Type, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: payload})
}

func Decode(b []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeProviderRequest:
		return decode[ProviderRequest](env)
	case TypeProviderResponse:
		return decode[ProviderResponse](env)
	case TypeAccountsChanged:
		return decode[AccountsChanged](env)
	case TypeChainChanged:
		return decode[ChainChanged](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func decode[T Message](env Envelope) (Message, error) {
	var v T
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("decode %s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, nil
}
