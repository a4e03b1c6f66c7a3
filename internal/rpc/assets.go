package rpc

import (
	"context"
	"strings"

	"github.com/quantumauth-io/wallet-bridge/internal/assets"
)

type watchAssetParams struct {
	Type    string `json:"type"`
	Options struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals *uint8 `json:"decimals"`
		Image    string `json:"image"`
		TokenID  string `json:"tokenId"`
	} `json:"options"`
}

// walletWatchAsset adds a token to the current chain's watch list. Missing
// ERC20 metadata is read from the contract.
func (d *Dispatcher) walletWatchAsset(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(1, 1); err != nil {
		return nil, err
	}
	var p watchAssetParams
	if err := c.decode(0, "asset", &p); err != nil {
		return nil, err
	}
	addr, err := parseAddress(p.Options.Address, "address")
	if err != nil {
		return nil, err
	}

	client, cfg, err := d.chains.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}

	t := assets.Token{
		ChainID: cfg.ChainID,
		Address: addr.Hex(),
		Symbol:  strings.TrimSpace(p.Options.Symbol),
		Image:   p.Options.Image,
		Type:    assets.TokenType(strings.ToUpper(strings.TrimSpace(p.Type))),
		TokenID: p.Options.TokenID,
	}
	if t.Type == "" {
		t.Type = assets.TypeERC20
	}
	if p.Options.Decimals != nil {
		t.Decimals = *p.Options.Decimals
	}

	if t.Type == assets.TypeERC20 && (t.Symbol == "" || p.Options.Decimals == nil) {
		meta, err := assets.Metadata(ctx, client, cfg.ChainID, addr)
		if err != nil {
			return nil, invalidParams("cannot read token metadata: %v", err)
		}
		if t.Symbol == "" {
			t.Symbol = meta.Symbol
		}
		if p.Options.Decimals == nil {
			t.Decimals = meta.Decimals
		}
		t.Name = meta.Name
	}

	if _, _, err := d.assets.Watch(ctx, t); err != nil {
		return nil, err
	}
	return true, nil
}

func (d *Dispatcher) walletGetWatchedTokens(ctx context.Context, _ *Call) (any, error) {
	return d.assets.List(ctx, d.chains.Current().ChainID)
}
