package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/units"
)

func (d *Dispatcher) ethChainID(context.Context, *Call) (any, error) {
	return d.chains.Current().ChainID, nil
}

func (d *Dispatcher) netVersion(context.Context, *Call) (any, error) {
	id, err := chains.ChainIDBig(d.chains.Current().ChainID)
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

type addChainParams struct {
	chains.ChainConfig
	// Older dapps send a single rpcUrl.
	RPCURL string `json:"rpcUrl,omitempty"`
}

// walletAddEthereumChain stores a new chain after the user approves it. It
// does not switch to it.
func (d *Dispatcher) walletAddEthereumChain(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(1, 1); err != nil {
		return nil, err
	}
	var p addChainParams
	if err := c.decode(0, "chain", &p); err != nil {
		return nil, err
	}
	cfg := p.ChainConfig
	if len(cfg.RPCURLs) == 0 && p.RPCURL != "" {
		cfg.RPCURLs = []string{p.RPCURL}
	}
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	if _, _, err := d.requireConnected(ctx, c.Origin); err != nil {
		return nil, err
	}
	// Known chain ids are kept as they are.
	if _, err := d.chains.Resolve(cfg.ChainID); err == nil {
		return nil, nil
	}
	if err := d.approveChain(ctx, c, approval.ChainRequest{
		Action:    approval.ChainAdd,
		ChainID:   cfg.ChainID,
		ChainName: cfg.ChainName,
		RPCURLs:   cfg.RPCURLs,
	}); err != nil {
		return nil, err
	}

	if _, _, err := d.chains.Add(ctx, cfg); err != nil {
		return nil, err
	}
	return nil, nil
}

// walletSwitchEthereumChain switches every page to a known chain once the
// user approves. Switching to the current chain is a no-op.
func (d *Dispatcher) walletSwitchEthereumChain(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(1, 1); err != nil {
		return nil, err
	}
	var p struct {
		ChainID any `json:"chainId"`
	}
	if err := c.decode(0, "chain", &p); err != nil {
		return nil, err
	}
	if p.ChainID == nil {
		return nil, invalidParams("missing chainId")
	}

	if _, _, err := d.requireConnected(ctx, c.Origin); err != nil {
		return nil, err
	}
	target, err := d.chains.Resolve(p.ChainID)
	if err != nil {
		return nil, err
	}
	if target.ChainID == d.chains.Current().ChainID {
		return nil, nil
	}
	if err := d.approveChain(ctx, c, approval.ChainRequest{
		Action:    approval.ChainSwitch,
		ChainID:   target.ChainID,
		ChainName: target.ChainName,
	}); err != nil {
		return nil, err
	}

	if _, err := d.SwitchChain(ctx, target.ChainID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) approveChain(ctx context.Context, c *Call, req approval.ChainRequest) error {
	approved, err := d.approvals.RequestChain(ctx, c.Origin, req)
	if err != nil {
		return err
	}
	if !approved {
		return userRejected("")
	}
	return nil
}

// ethGetBalance takes [address, blockTag?]. Only the current account can be
// queried.
func (d *Dispatcher) ethGetBalance(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(1, 2); err != nil {
		return nil, err
	}
	addr, err := c.address(0, "address")
	if err != nil {
		return nil, err
	}
	block, err := c.blockNumber(1)
	if err != nil {
		return nil, err
	}
	_, cur, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}
	if addr != cur {
		return nil, errAddressMismatch
	}

	client, _, err := d.chains.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}
	wei, err := client.BalanceAt(ctx, addr, block)
	if err != nil {
		return nil, err
	}
	return units.ToHexQuantity(wei), nil
}

// ethGetTokenBalance takes [address, token].
func (d *Dispatcher) ethGetTokenBalance(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(2, 2); err != nil {
		return nil, err
	}
	owner, err := c.address(0, "address")
	if err != nil {
		return nil, err
	}
	token, err := c.address(1, "token")
	if err != nil {
		return nil, err
	}
	_, cur, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}
	if owner != cur {
		return nil, errAddressMismatch
	}

	client, cfg, err := d.chains.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := d.tokenMetadata(ctx, client, cfg, token)
	if err != nil {
		return nil, err
	}
	bal, err := assets.BalanceOf(ctx, client, token, owner)
	if err != nil {
		return nil, err
	}
	return TokenBalance{
		Owner:     owner.Hex(),
		Token:     token.Hex(),
		Balance:   units.ToHexQuantity(bal),
		Formatted: units.FormatUnits(bal, meta.Decimals, 6),
		Symbol:    meta.Symbol,
		Decimals:  meta.Decimals,
	}, nil
}

// tokenMetadata prefers the watch list and falls back to the contract.
func (d *Dispatcher) tokenMetadata(ctx context.Context, client assets.Caller, cfg chains.ChainConfig, token common.Address) (assets.Token, error) {
	if assets.IsNative(token) {
		return assets.Token{
			ChainID:  cfg.ChainID,
			Address:  token.Hex(),
			Symbol:   cfg.NativeCurrency.Symbol,
			Decimals: cfg.NativeCurrency.Decimals,
			Type:     assets.TypeERC20,
		}, nil
	}
	watched, err := d.assets.List(ctx, cfg.ChainID)
	if err != nil {
		return assets.Token{}, err
	}
	for _, t := range watched {
		if strings.EqualFold(t.Address, token.Hex()) && t.TokenID == "" {
			return t, nil
		}
	}
	return assets.Metadata(ctx, client, cfg.ChainID, token)
}

// blockNumber reads an optional block tag. Named tags other than
// "earliest" read the latest state.
func (c *Call) blockNumber(i int) (*big.Int, error) {
	if !c.has(i) {
		return nil, nil
	}
	var tag string
	if err := json.Unmarshal(c.Params[i], &tag); err != nil {
		return nil, invalidParams("invalid block tag")
	}
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "latest", "pending", "safe", "finalized":
		return nil, nil
	case "earliest":
		return new(big.Int), nil
	}
	if !strings.HasPrefix(tag, "0x") {
		return nil, invalidParams("invalid block tag %q", tag)
	}
	return parseQuantity(tag, "block tag")
}
