// Package rpc routes EIP-1193 provider calls to the vault, chain directory,
// permission ledger and approval surface.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

// Notifier receives provider events. An empty origin means every page.
type Notifier interface {
	AccountsChanged(ctx context.Context, origin string, accounts []common.Address)
	ChainChanged(ctx context.Context, chainID string)
}

type handlerFunc func(ctx context.Context, c *Call) (any, error)

type Deps struct {
	Vault     *vault.Vault
	Chains    *chains.Directory
	Ledger    *permissions.Ledger
	Approvals approval.Surface
	Assets    *assets.Manager
}

type Dispatcher struct {
	vault     *vault.Vault
	chains    *chains.Directory
	ledger    *permissions.Ledger
	approvals approval.Surface
	assets    *assets.Manager

	// session is the host's unlocked vault session. Pages never hold one.
	session atomic.Pointer[vault.Session]

	notifierMu sync.RWMutex
	notifier   Notifier

	sendMu    sync.Mutex
	sendLocks map[common.Address]*sync.Mutex

	methods map[string]handlerFunc
}

func New(d Deps) (*Dispatcher, error) {
	if d.Vault == nil || d.Chains == nil || d.Ledger == nil || d.Approvals == nil || d.Assets == nil {
		return nil, errors.New("rpc: missing dependency")
	}
	disp := &Dispatcher{
		vault:     d.Vault,
		chains:    d.Chains,
		ledger:    d.Ledger,
		approvals: d.Approvals,
		assets:    d.Assets,
		sendLocks: make(map[common.Address]*sync.Mutex),
	}
	disp.methods = map[string]handlerFunc{
		"eth_accounts":        disp.ethAccounts,
		"eth_requestAccounts": disp.ethRequestAccounts,
		"eth_chainId":         disp.ethChainID,
		"net_version":         disp.netVersion,

		"eth_sign":             disp.ethSign,
		"personal_sign":        disp.personalSign,
		"eth_signTypedData_v4": disp.signTypedDataV4,

		"eth_sendTransaction": disp.ethSendTransaction,
		"eth_getBalance":      disp.ethGetBalance,
		"eth_getTokenBalance": disp.ethGetTokenBalance,

		"wallet_addEthereumChain":    disp.walletAddEthereumChain,
		"wallet_switchEthereumChain": disp.walletSwitchEthereumChain,

		"wallet_watchAsset":       disp.walletWatchAsset,
		"wallet_getWatchedTokens": disp.walletGetWatchedTokens,

		"wallet_generateMnemonic": disp.walletGenerateMnemonic,
		"wallet_importMnemonic":   disp.walletImportMnemonic,

		"wallet_sendEthTransaction":   disp.walletSendEthTransaction,
		"wallet_sendTokenTransaction": disp.walletSendTokenTransaction,

		"wallet_getPermissions":    disp.walletGetPermissions,
		"wallet_revokePermissions": disp.walletRevokePermissions,
	}
	return disp, nil
}

// Methods lists the supported method names.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.methods))
	for m := range d.methods {
		out = append(out, m)
	}
	return out
}

func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notifierMu.Lock()
	defer d.notifierMu.Unlock()
	d.notifier = n
}

// Dispatch handles one request from origin. It never fails; errors are
// returned inside the response with the request id echoed.
func (d *Dispatcher) Dispatch(ctx context.Context, origin string, req Request) Response {
	if req.JSONRPC != "" && req.JSONRPC != Version {
		return errorResponse(req.ID, &Error{Code: CodeInvalidRequest, Message: "unsupported jsonrpc version"})
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return errorResponse(req.ID, &Error{Code: CodeInvalidRequest, Message: "missing method"})
	}

	h, ok := d.methods[method]
	if !ok {
		return errorResponse(req.ID, &Error{Code: CodeMethodNotFound, Message: "the method " + method + " does not exist / is not available"})
	}

	params, err := splitParams(req.Params)
	if err != nil {
		return errorResponse(req.ID, toError(err))
	}

	result, err := h(ctx, &Call{Origin: origin, Method: method, Params: params})
	if err != nil {
		rpcErr := toError(err)
		if rpcErr.Code == CodeInternalError {
			log.Error("rpc call failed", "method", method, "origin", origin, "error", err)
		} else {
			log.Warn("rpc call rejected", "method", method, "origin", origin, "code", rpcErr.Code, "message", rpcErr.Message)
		}
		return errorResponse(req.ID, rpcErr)
	}

	b, err := json.Marshal(result)
	if err != nil {
		log.Error("rpc result encode failed", "method", method, "error", err)
		return errorResponse(req.ID, &Error{Code: CodeInternalError, Message: "Internal error"})
	}
	return Response{JSONRPC: Version, ID: req.ID, Result: b}
}

// Attach makes s the session page requests run under and tells every
// connected page which account it can see.
func (d *Dispatcher) Attach(ctx context.Context, s vault.Session) {
	d.session.Store(&s)
	d.notifyAccounts(ctx)
}

// Detach locks page access. Connected pages see an empty account list.
func (d *Dispatcher) Detach(ctx context.Context) {
	d.session.Store(nil)
	for _, r := range d.ledger.List() {
		d.emitAccounts(ctx, r.Origin, nil)
	}
}

// Session returns the attached session if it is still valid.
func (d *Dispatcher) Session() (vault.Session, bool) {
	p := d.session.Load()
	if p == nil || !d.vault.Valid(*p) {
		return "", false
	}
	return *p, true
}

// SelectAccount changes the current account and notifies pages.
func (d *Dispatcher) SelectAccount(ctx context.Context, s vault.Session, addr common.Address) error {
	if err := d.vault.SelectAccount(ctx, s, addr); err != nil {
		return err
	}
	d.notifyAccounts(ctx)
	return nil
}

// SwitchChain changes the current chain and notifies pages when it changed.
func (d *Dispatcher) SwitchChain(ctx context.Context, chainID any) (chains.ChainConfig, error) {
	cfg, changed, err := d.chains.Switch(ctx, chainID)
	if err != nil {
		return chains.ChainConfig{}, err
	}
	if changed {
		d.emitChain(ctx, cfg.ChainID)
	}
	return cfg, nil
}

// Revoke removes origin's grant and tells its pages.
func (d *Dispatcher) Revoke(ctx context.Context, origin string) (bool, error) {
	ok, err := d.ledger.Revoke(ctx, origin)
	if err != nil || !ok {
		return ok, err
	}
	d.emitAccounts(ctx, permissions.NormalizeOrigin(origin), nil)
	return true, nil
}

// notifyAccounts pushes, per connected origin, the current account if that
// origin was granted it and an empty list otherwise.
func (d *Dispatcher) notifyAccounts(ctx context.Context) {
	cur, err := d.vault.CurrentAccount(ctx)
	for _, r := range d.ledger.List() {
		if err == nil && d.ledger.Check(r.Origin, cur) {
			d.emitAccounts(ctx, r.Origin, []common.Address{cur})
		} else {
			d.emitAccounts(ctx, r.Origin, nil)
		}
	}
}

func (d *Dispatcher) emitAccounts(ctx context.Context, origin string, accounts []common.Address) {
	d.notifierMu.RLock()
	n := d.notifier
	d.notifierMu.RUnlock()
	if n != nil {
		n.AccountsChanged(ctx, origin, accounts)
	}
}

func (d *Dispatcher) emitChain(ctx context.Context, chainID string) {
	d.notifierMu.RLock()
	n := d.notifier
	d.notifierMu.RUnlock()
	if n != nil {
		n.ChainChanged(ctx, chainID)
	}
}

// requireSession fails with 4100 while the vault is locked.
func (d *Dispatcher) requireSession() (vault.Session, error) {
	s, ok := d.Session()
	if !ok {
		return "", vault.ErrLocked
	}
	return s, nil
}

// requireConnected returns the session and the current account, which the
// origin must have been granted.
func (d *Dispatcher) requireConnected(ctx context.Context, origin string) (vault.Session, common.Address, error) {
	s, err := d.requireSession()
	if err != nil {
		return "", common.Address{}, err
	}
	cur, err := d.vault.CurrentAccount(ctx)
	if err != nil {
		return "", common.Address{}, err
	}
	if !d.ledger.Check(origin, cur) {
		return "", common.Address{}, unauthorized("The requested account and/or method has not been authorized by the user.")
	}
	return s, cur, nil
}
