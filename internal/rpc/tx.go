package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/units"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

const maxFeeBaseFeeMultiplier = 2

// txArgs is the eth_sendTransaction object. Numbers are 0x quantities;
// value may also be a decimal ether amount.
type txArgs struct {
	From                 string `json:"from"`
	To                   string `json:"to"`
	Value                string `json:"value"`
	Data                 string `json:"data"`
	Input                string `json:"input"`
	Gas                  string `json:"gas"`
	GasPrice             string `json:"gasPrice"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	Nonce                string `json:"nonce"`
	ChainID              any    `json:"chainId"`
}

// txRequest is a transaction after parsing and before fee resolution.
type txRequest struct {
	from     common.Address
	to       *common.Address
	value    *big.Int
	data     []byte
	gas      uint64
	gasPrice *big.Int
	maxFee   *big.Int
	tip      *big.Int
	nonce    *uint64

	// token transfer display and balance check
	token     *common.Address
	recipient *common.Address
	amount    *big.Int
	decimals  uint8
	symbol    string
}

// preparedTx is everything but the nonce, which is only read once the user
// has approved and the account's send lock is held.
type preparedTx struct {
	txdata  types.TxData
	nonce   *uint64
	chainID *big.Int
	client  chains.ChainClient
	summary approval.TxSummary
}

func insufficientFunds(format string, args ...any) *Error {
	return &Error{Code: CodeInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func (a txArgs) request() (txRequest, error) {
	var r txRequest
	var err error

	if r.to, err = parseAddressPtr(a.To, "to"); err != nil {
		return r, err
	}
	if r.value, err = units.ParseValue(a.Value); err != nil {
		return r, invalidParams("invalid value: %v", err)
	}

	data := a.Data
	if data == "" {
		data = a.Input
	} else if a.Input != "" && !strings.EqualFold(a.Input, a.Data) {
		return r, invalidParams("data and input differ")
	}
	if r.data, err = parseHexData(data, "data"); err != nil {
		return r, err
	}
	if r.to == nil && len(r.data) == 0 {
		return r, invalidParams("contract creation without data")
	}

	gas, err := parseQuantity(a.Gas, "gas")
	if err != nil {
		return r, err
	}
	if gas != nil {
		if !gas.IsUint64() {
			return r, invalidParams("gas out of range")
		}
		r.gas = gas.Uint64()
	}
	if r.gasPrice, err = parseQuantity(a.GasPrice, "gasPrice"); err != nil {
		return r, err
	}
	if r.maxFee, err = parseQuantity(a.MaxFeePerGas, "maxFeePerGas"); err != nil {
		return r, err
	}
	if r.tip, err = parseQuantity(a.MaxPriorityFeePerGas, "maxPriorityFeePerGas"); err != nil {
		return r, err
	}
	if r.gasPrice != nil && (r.maxFee != nil || r.tip != nil) {
		return r, invalidParams("gasPrice cannot be combined with EIP-1559 fee fields")
	}

	nonce, err := parseQuantity(a.Nonce, "nonce")
	if err != nil {
		return r, err
	}
	if nonce != nil {
		if !nonce.IsUint64() {
			return r, invalidParams("nonce out of range")
		}
		n := nonce.Uint64()
		r.nonce = &n
	}
	return r, nil
}

// prepareTx resolves fees, gas and nonce on the current chain and checks
// that from can pay value + gas*fee.
func (d *Dispatcher) prepareTx(ctx context.Context, r txRequest) (*preparedTx, error) {
	client, cfg, err := d.chains.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}
	chainID, err := chains.ChainIDBig(cfg.ChainID)
	if err != nil {
		return nil, err
	}

	value := nonNil(r.value)
	dynamic := r.gasPrice == nil
	var feeCap, tip *big.Int
	if dynamic {
		feeCap, tip, err = resolveEIP1559Fees(ctx, client, r.maxFee, r.tip)
		if err != nil {
			return nil, err
		}
		if feeCap == nil {
			dynamic = false
		}
	}
	if !dynamic {
		feeCap = r.gasPrice
		if feeCap == nil {
			if feeCap, err = client.SuggestGasPrice(ctx); err != nil {
				return nil, fmt.Errorf("suggest gas price: %w", err)
			}
		}
	}

	gas := r.gas
	if gas == 0 {
		msg := ethereum.CallMsg{From: r.from, To: r.to, Value: value, Data: r.data}
		if gas, err = client.EstimateGas(ctx, msg); err != nil {
			return nil, invalidParams("gas estimation failed: %v", err)
		}
	}

	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(gas), feeCap)
	maxCost.Add(maxCost, value)
	balance, err := client.BalanceAt(ctx, r.from, nil)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	if balance.Cmp(maxCost) < 0 {
		return nil, insufficientFunds("insufficient funds for gas * price + value: have %s want %s", balance, maxCost)
	}

	var txdata types.TxData
	if dynamic {
		txdata = &types.DynamicFeeTx{
			ChainID:   chainID,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        r.to,
			Value:     value,
			Data:      r.data,
		}
	} else {
		txdata = &types.LegacyTx{
			GasPrice: feeCap,
			Gas:      gas,
			To:       r.to,
			Value:    value,
			Data:     r.data,
		}
	}

	summary := approval.TxSummary{
		ChainID:      cfg.ChainID,
		From:         r.from,
		To:           r.to,
		Value:        units.FormatUnits(value, cfg.NativeCurrency.Decimals, 18),
		Symbol:       cfg.NativeCurrency.Symbol,
		Gas:          gas,
		MaxFeePerGas: units.ToHexQuantity(feeCap),
		MaxCost:      units.FormatUnits(maxCost, cfg.NativeCurrency.Decimals, 18),
	}
	if len(r.data) > 0 {
		summary.Data = hexutil.Encode(r.data)
	}
	if r.token != nil {
		summary.Token = r.token
		summary.Recipient = r.recipient
		summary.Amount = units.FormatUnits(r.amount, r.decimals, int(r.decimals))
		if r.symbol != "" {
			summary.Amount += " " + r.symbol
		}
	}

	return &preparedTx{txdata: txdata, nonce: r.nonce, chainID: chainID, client: client, summary: summary}, nil
}

// resolveEIP1559Fees fills missing fee fields from the node:
// tip from eth_maxPriorityFeePerGas and maxFee = 2*baseFee + tip.
// A nil feeCap means the chain has no base fee.
func resolveEIP1559Fees(ctx context.Context, client chains.ChainClient, maxFee, tip *big.Int) (*big.Int, *big.Int, error) {
	if maxFee != nil && tip != nil {
		if maxFee.Cmp(tip) < 0 {
			return nil, nil, invalidParams("maxFeePerGas below maxPriorityFeePerGas")
		}
		return maxFee, tip, nil
	}

	hdr, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("latest header: %w", err)
	}
	if hdr.BaseFee == nil {
		if maxFee != nil || tip != nil {
			return nil, nil, invalidParams("chain does not support EIP-1559 fees")
		}
		return nil, nil, nil
	}

	if tip == nil {
		if tip, err = client.SuggestGasTipCap(ctx); err != nil {
			return nil, nil, fmt.Errorf("suggest tip: %w", err)
		}
	}
	if maxFee == nil {
		maxFee = new(big.Int).Mul(hdr.BaseFee, big.NewInt(maxFeeBaseFeeMultiplier))
		maxFee.Add(maxFee, tip)
	}
	if maxFee.Cmp(tip) < 0 {
		return nil, nil, invalidParams("maxFeePerGas below maxPriorityFeePerGas")
	}
	return maxFee, tip, nil
}

// sendPrepared asks for approval, signs and broadcasts. It returns the
// transaction hash.
func (d *Dispatcher) sendPrepared(ctx context.Context, c *Call, s vault.Session, p *preparedTx) (any, error) {
	approved, err := d.approvals.RequestTransaction(ctx, c.Origin, p.summary)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, userRejected("")
	}

	mu := d.sendLock(p.summary.From)
	mu.Lock()
	defer mu.Unlock()

	nonce, err := p.resolveNonce(ctx)
	if err != nil {
		return nil, err
	}

	return d.withSigner(ctx, s, p.summary.From, func(sg *vault.Signer) (any, error) {
		signed, _, err := sg.SignTransaction(p.withNonce(nonce), p.chainID)
		if err != nil {
			return nil, err
		}
		if err := p.client.SendTransaction(ctx, signed); err != nil {
			return nil, fmt.Errorf("send transaction: %w", err)
		}
		log.Info("transaction sent", "origin", c.Origin, "hash", signed.Hash().Hex(), "chainId", p.summary.ChainID, "nonce", nonce)
		return signed.Hash().Hex(), nil
	})
}

func (p *preparedTx) resolveNonce(ctx context.Context) (uint64, error) {
	if p.nonce != nil {
		return *p.nonce, nil
	}
	n, err := p.client.PendingNonceAt(ctx, p.summary.From)
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w", err)
	}
	return n, nil
}

func (p *preparedTx) withNonce(nonce uint64) *types.Transaction {
	switch t := p.txdata.(type) {
	case *types.DynamicFeeTx:
		t.Nonce = nonce
	case *types.LegacyTx:
		t.Nonce = nonce
	}
	return types.NewTx(p.txdata)
}

// sendLock serializes nonce lookup, signing and broadcast per account.
func (d *Dispatcher) sendLock(addr common.Address) *sync.Mutex {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	mu, ok := d.sendLocks[addr]
	if !ok {
		mu = &sync.Mutex{}
		d.sendLocks[addr] = mu
	}
	return mu
}

func (d *Dispatcher) ethSendTransaction(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(1, 1); err != nil {
		return nil, err
	}
	var a txArgs
	if err := c.decode(0, "transaction", &a); err != nil {
		return nil, err
	}
	r, err := a.request()
	if err != nil {
		return nil, err
	}

	s, cur, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.From) != "" {
		from, err := parseAddress(a.From, "from")
		if err != nil {
			return nil, err
		}
		if from != cur {
			return nil, errAddressMismatch
		}
	}
	r.from = cur

	if a.ChainID != nil {
		id, err := chains.NormalizeChainID(a.ChainID)
		if err != nil {
			return nil, invalidParams("invalid chainId: %v", err)
		}
		if id != d.chains.Current().ChainID {
			return nil, invalidParams("chainId %s does not match the current chain %s", id, d.chains.Current().ChainID)
		}
	}

	p, err := d.prepareTx(ctx, r)
	if err != nil {
		return nil, err
	}
	return d.sendPrepared(ctx, c, s, p)
}

// walletSendEthTransaction takes [to, value] and sends from the current
// account.
func (d *Dispatcher) walletSendEthTransaction(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(2, 2); err != nil {
		return nil, err
	}
	to, err := c.address(0, "to")
	if err != nil {
		return nil, err
	}
	rawValue, err := c.string(1, "value")
	if err != nil {
		return nil, err
	}
	value, err := units.ParseValue(rawValue)
	if err != nil {
		return nil, invalidParams("invalid value: %v", err)
	}

	s, cur, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}
	p, err := d.prepareTx(ctx, txRequest{from: cur, to: &to, value: value})
	if err != nil {
		return nil, err
	}
	return d.sendPrepared(ctx, c, s, p)
}

// walletSendTokenTransaction takes [token, to, amount]. The amount is a
// decimal in token units, or a 0x quantity in raw units.
func (d *Dispatcher) walletSendTokenTransaction(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(3, 3); err != nil {
		return nil, err
	}
	token, err := c.address(0, "token")
	if err != nil {
		return nil, err
	}
	to, err := c.address(1, "to")
	if err != nil {
		return nil, err
	}
	rawAmount, err := c.string(2, "amount")
	if err != nil {
		return nil, err
	}
	rawAmount = strings.TrimSpace(rawAmount)

	if assets.IsNative(token) {
		return nil, invalidParams("token must be a contract address")
	}

	s, cur, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}
	client, cfg, err := d.chains.CurrentClient(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := d.tokenMetadata(ctx, client, cfg, token)
	if err != nil {
		return nil, err
	}

	var amount *big.Int
	if strings.HasPrefix(rawAmount, "0x") {
		amount, err = parseQuantity(rawAmount, "amount")
	} else {
		amount, err = units.ParseUnits(rawAmount, meta.Decimals)
	}
	if err != nil {
		return nil, invalidParams("invalid amount: %v", err)
	}
	amount = nonNil(amount)
	if amount.Sign() == 0 {
		return nil, invalidParams("amount must be positive")
	}

	bal, err := assets.BalanceOf(ctx, client, token, cur)
	if err != nil {
		return nil, err
	}
	if bal.Cmp(amount) < 0 {
		return nil, insufficientFunds("insufficient %s balance: have %s want %s",
			meta.Symbol, units.FormatUnits(bal, meta.Decimals, int(meta.Decimals)), units.FormatUnits(amount, meta.Decimals, int(meta.Decimals)))
	}

	data, err := assets.PackTransfer(to, amount)
	if err != nil {
		return nil, err
	}
	p, err := d.prepareTx(ctx, txRequest{
		from:      cur,
		to:        &token,
		value:     new(big.Int),
		data:      data,
		token:     &token,
		recipient: &to,
		amount:    amount,
		decimals:  meta.Decimals,
		symbol:    meta.Symbol,
	})
	if err != nil {
		return nil, err
	}
	return d.sendPrepared(ctx, c, s, p)
}
