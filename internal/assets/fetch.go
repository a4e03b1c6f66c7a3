package assets

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return a
}

// Caller is the read side of a chain client.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// BalanceOf returns the balance of owner.
// The zero token address reads the native balance in wei.
func BalanceOf(ctx context.Context, c Caller, token, owner common.Address) (*big.Int, error) {
	if IsNative(token) {
		wei, err := c.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("assets: native balance: %w", err)
		}
		return wei, nil
	}

	out, err := call(ctx, c, token, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("assets: erc20 balanceOf: %w", err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("assets: erc20 balanceOf: unexpected %T", out[0])
	}
	return bal, nil
}

// Metadata reads symbol, decimals and name. Name is optional.
func Metadata(ctx context.Context, c Caller, chainID string, token common.Address) (Token, error) {
	if IsNative(token) {
		return Token{ChainID: chainID, Address: token.Hex(), Symbol: "ETH", Decimals: 18, Name: "Ether", Type: TypeERC20}, nil
	}

	sym, err := call(ctx, c, token, "symbol")
	if err != nil {
		return Token{}, fmt.Errorf("symbol: %w", err)
	}
	dec, err := call(ctx, c, token, "decimals")
	if err != nil {
		return Token{}, fmt.Errorf("decimals: %w", err)
	}

	out := Token{ChainID: chainID, Address: token.Hex(), Type: TypeERC20}
	out.Symbol, _ = sym[0].(string)
	out.Decimals, _ = dec[0].(uint8)

	if n, err := call(ctx, c, token, "name"); err == nil {
		out.Name, _ = n[0].(string)
	}
	return out, nil
}

// PackTransfer encodes transfer(to, amount).
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", to, amount)
}

func call(ctx context.Context, c Caller, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out, nil
}
