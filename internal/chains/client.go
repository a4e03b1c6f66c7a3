package chains

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
)

// ChainClient is the subset of *ethclient.Client the wallet uses.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

type DialFunc func(ctx context.Context, url string) (ChainClient, error)

func dialEthclient(ctx context.Context, url string) (ChainClient, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to connect to blockchain at %s", url)
	}
	return c, nil
}

const chainIDCheckTimeout = 10 * time.Second

// verifyChainID checks the endpoint serves the chain it is configured for.
// A mismatch is logged; the client is still used.
func verifyChainID(ctx context.Context, c ChainClient, url string, want *big.Int) {
	ctx, cancel := context.WithTimeout(ctx, chainIDCheckTimeout)
	defer cancel()

	cfg := retry.DefaultConfig()
	cfg.InitialDelayBeforeRetrying = 200 * time.Millisecond
	cfg.MaxDelayBeforeRetrying = 2 * time.Second

	res, err := retry.Retry(ctx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			id, err := c.ChainID(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "Failed to get chain id")
			}
			return []interface{}{id}, nil
		},
		nil,
		"check chain id")
	if err != nil {
		log.Warn("chain id check failed", "url", url, "error", err)
		return
	}
	if len(res) == 0 {
		return
	}
	got, ok := res[0].(*big.Int)
	if !ok || got == nil {
		return
	}
	if got.Cmp(want) != 0 {
		log.Warn("rpc endpoint serves a different chain", "url", url, "configured", want.String(), "remote", got.String())
	}
}
