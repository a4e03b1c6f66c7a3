// Package chainstest provides an in-memory chains.ChainClient for tests.
package chainstest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Client struct {
	mu sync.Mutex

	ID       *big.Int
	Balances map[common.Address]*big.Int
	Nonce    uint64
	TipCap   *big.Int
	GasPrice *big.Int
	BaseFee  *big.Int
	Gas      uint64

	// CallFn answers eth_call. Nil returns an error.
	CallFn func(msg ethereum.CallMsg) ([]byte, error)

	SendErr error
	Sent    []*types.Transaction
	Closed  bool
}

func New(chainID int64) *Client {
	return &Client{
		ID:       big.NewInt(chainID),
		Balances: map[common.Address]*big.Int{},
		TipCap:   big.NewInt(1_000_000_000),
		GasPrice: big.NewInt(2_000_000_000),
		BaseFee:  big.NewInt(10_000_000_000),
		Gas:      21000,
	}
}

func (c *Client) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[addr] = new(big.Int).Set(wei)
}

func (c *Client) SentTransactions() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.Sent...)
}

func (c *Client) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.ID), nil
}

func (c *Client) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.Balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *Client) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonce, nil
}

func (c *Client) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.GasPrice), nil
}

func (c *Client) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.TipCap), nil
}

func (c *Client) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	h := &types.Header{Number: big.NewInt(1)}
	if c.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(c.BaseFee)
	}
	return h, nil
}

func (c *Client) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return c.Gas, nil
}

func (c *Client) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if c.CallFn == nil {
		return nil, errors.New("eth_call not supported")
	}
	return c.CallFn(msg)
}

func (c *Client) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, tx)
	c.Nonce++
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}
