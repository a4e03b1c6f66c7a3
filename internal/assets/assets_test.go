package assets

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/wallet-bridge/internal/chains/chainstest"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
)

const usdc = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"

func TestWatchDedupesAndFilters(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kvstore.NewMemory())

	tok, added, err := m.Watch(ctx, Token{ChainID: "11155111", Address: usdc, Symbol: " USDC ", Decimals: 6})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "0xaa36a7", tok.ChainID)
	assert.Equal(t, TypeERC20, tok.Type)
	assert.Equal(t, "USDC", tok.Symbol)

	_, added, err = m.Watch(ctx, Token{ChainID: "0xaa36a7", Address: "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238", Symbol: "USDC", Decimals: 6})
	require.NoError(t, err)
	assert.False(t, added)

	_, added, err = m.Watch(ctx, Token{ChainID: "0x1", Address: usdc, Symbol: "USDC", Decimals: 6})
	require.NoError(t, err)
	assert.True(t, added)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sepolia, err := m.List(ctx, "0xaa36a7")
	require.NoError(t, err)
	assert.Len(t, sepolia, 1)

	removed, err := m.Remove(ctx, "0x1", usdc, "")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = m.Remove(ctx, "0x1", usdc, "")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestWatchValidation(t *testing.T) {
	m := NewManager(kvstore.NewMemory())
	tests := []struct {
		name string
		tok  Token
	}{
		{name: "bad address", tok: Token{ChainID: "0x1", Address: "0x12", Symbol: "X"}},
		{name: "no symbol", tok: Token{ChainID: "0x1", Address: usdc}},
		{name: "long symbol", tok: Token{ChainID: "0x1", Address: usdc, Symbol: "ABCDEFGHIJKL"}},
		{name: "bad type", tok: Token{ChainID: "0x1", Address: usdc, Symbol: "X", Type: "ERC777"}},
		{name: "decimals", tok: Token{ChainID: "0x1", Address: usdc, Symbol: "X", Decimals: 77}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := m.Watch(context.Background(), tc.tok)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func erc20Fake(balance *big.Int) *chainstest.Client {
	c := chainstest.New(1)
	c.CallFn = func(msg ethereum.CallMsg) ([]byte, error) {
		switch {
		case bytes.Equal(msg.Data[:4], erc20ABI.Methods["balanceOf"].ID):
			return erc20ABI.Methods["balanceOf"].Outputs.Pack(balance)
		case bytes.Equal(msg.Data[:4], erc20ABI.Methods["symbol"].ID):
			return erc20ABI.Methods["symbol"].Outputs.Pack("USDC")
		case bytes.Equal(msg.Data[:4], erc20ABI.Methods["decimals"].ID):
			return erc20ABI.Methods["decimals"].Outputs.Pack(uint8(6))
		default:
			return nil, errors.New("execution reverted")
		}
	}
	return c
}

func TestBalanceOfAndMetadata(t *testing.T) {
	ctx := context.Background()
	owner := common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	c := erc20Fake(big.NewInt(1_500_000))
	c.SetBalance(owner, big.NewInt(42))

	bal, err := BalanceOf(ctx, c, common.HexToAddress(usdc), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), bal.Int64())

	native, err := BalanceOf(ctx, c, common.Address{}, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(42), native.Int64())

	md, err := Metadata(ctx, c, "0x1", common.HexToAddress(usdc))
	require.NoError(t, err)
	assert.Equal(t, "USDC", md.Symbol)
	assert.Equal(t, uint8(6), md.Decimals)
	assert.Empty(t, md.Name, "name reverts and is optional")
}

func TestPackTransfer(t *testing.T) {
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	data, err := PackTransfer(to, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, data[:4])
	assert.Len(t, data, 4+32+32)
}
