// Package approval asks the user to approve connections, signatures and
// transactions.
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/pending"
)

const DefaultTimeout = 5 * time.Minute

// Surface is what request handlers need from the approval UI.
type Surface interface {
	RequestConnection(ctx context.Context, origin string, accounts []common.Address) (bool, error)
	RequestSignature(ctx context.Context, origin string, req SignatureRequest) (bool, error)
	RequestTransaction(ctx context.Context, origin string, tx TxSummary) (bool, error)
	RequestChain(ctx context.Context, origin string, req ChainRequest) (bool, error)
	RequestImport(ctx context.Context, origin string, req ImportRequest) (bool, error)
}

type SignatureRequest struct {
	Address common.Address `json:"address"`
	Method  string         `json:"method"`
	// Message is the display form: UTF-8 text when printable, hex otherwise.
	Message string `json:"message"`
}

type TxSummary struct {
	ChainID      string          `json:"chainId"`
	From         common.Address  `json:"from"`
	To           *common.Address `json:"to,omitempty"`
	Value        string          `json:"value"`
	Symbol       string          `json:"symbol"`
	Data         string          `json:"data,omitempty"`
	Gas          uint64          `json:"gas"`
	MaxFeePerGas string          `json:"maxFeePerGas"`
	MaxCost      string          `json:"maxCost"`

	// Set for token transfers.
	Token     *common.Address `json:"token,omitempty"`
	Recipient *common.Address `json:"recipient,omitempty"`
	Amount    string          `json:"amount,omitempty"`
}

// Chain actions a page can ask for.
const (
	ChainAdd    = "add"
	ChainSwitch = "switch"
)

type ChainRequest struct {
	Action    string   `json:"action"`
	ChainID   string   `json:"chainId"`
	ChainName string   `json:"chainName,omitempty"`
	RPCURLs   []string `json:"rpcUrls,omitempty"`
}

// ImportRequest is a page asking to store a mnemonic. The phrase itself is
// never shown; the derived addresses are.
type ImportRequest struct {
	Accounts []common.Address `json:"accounts"`
}

// Details is the kind specific part of a prompt. It is also the payload of
// the pending request.
type Details struct {
	Accounts    []common.Address  `json:"accounts,omitempty"`
	Signature   *SignatureRequest `json:"signature,omitempty"`
	Transaction *TxSummary        `json:"transaction,omitempty"`
	Chain       *ChainRequest     `json:"chain,omitempty"`
	Import      *ImportRequest    `json:"import,omitempty"`
}

type Prompt struct {
	RequestID pending.ID   `json:"requestId"`
	Kind      pending.Kind `json:"kind"`
	Origin    string       `json:"origin"`
	Deadline  time.Time    `json:"deadline"`
	Details
}

// Service implements Surface over a pending.Registry and a Launcher.
type Service struct {
	reg      *pending.Registry
	launcher Launcher
	timeout  time.Duration
}

func NewService(reg *pending.Registry, launcher Launcher, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{reg: reg, launcher: launcher, timeout: timeout}
}

func (s *Service) RequestConnection(ctx context.Context, origin string, accounts []common.Address) (bool, error) {
	return s.request(ctx, pending.KindConnection, origin, Details{Accounts: accounts})
}

func (s *Service) RequestSignature(ctx context.Context, origin string, req SignatureRequest) (bool, error) {
	return s.request(ctx, pending.KindSignature, origin, Details{Signature: &req})
}

func (s *Service) RequestTransaction(ctx context.Context, origin string, tx TxSummary) (bool, error) {
	return s.request(ctx, pending.KindTransaction, origin, Details{Transaction: &tx})
}

func (s *Service) RequestChain(ctx context.Context, origin string, req ChainRequest) (bool, error) {
	return s.request(ctx, pending.KindChain, origin, Details{Chain: &req})
}

func (s *Service) RequestImport(ctx context.Context, origin string, req ImportRequest) (bool, error) {
	return s.request(ctx, pending.KindImport, origin, Details{Import: &req})
}

// Resolve records the user's decision. It reports whether id was pending.
func (s *Service) Resolve(id pending.ID, approved bool) bool {
	ok := s.reg.Resolve(id, approved)
	if ok {
		log.Info("approval decided", "requestId", id, "approved", approved)
	}
	return ok
}

// Pending lists the prompts waiting for a decision.
func (s *Service) Pending() []Prompt {
	reqs := s.reg.List()
	out := make([]Prompt, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, promptFor(r))
	}
	return out
}

// Prompt returns the pending prompt for id.
func (s *Service) Prompt(id pending.ID) (Prompt, bool) {
	r, ok := s.reg.Get(id)
	if !ok {
		return Prompt{}, false
	}
	return promptFor(r), true
}

func (s *Service) request(ctx context.Context, kind pending.Kind, origin string, d Details) (bool, error) {
	id, h, err := s.reg.Register(kind, origin, d, s.timeout)
	if err != nil {
		return false, err
	}

	req, ok := s.reg.Get(id)
	if !ok {
		// settled between Register and Get; Wait reports how
		return h.Wait(ctx)
	}

	if err := s.launcher.Launch(ctx, promptFor(req)); err != nil {
		s.reg.Cancel(id, "launch failed")
		return false, fmt.Errorf("launch approval: %w", err)
	}
	log.Info("approval requested", "requestId", id, "kind", kind.String(), "origin", origin)

	return h.Wait(ctx)
}

func promptFor(r pending.Request) Prompt {
	d, _ := r.Payload.(Details)
	return Prompt{
		RequestID: r.ID,
		Kind:      r.Kind,
		Origin:    r.Origin,
		Deadline:  r.Deadline,
		Details:   d,
	}
}
