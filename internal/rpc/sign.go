package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

// ethSign takes [address, data]. The data is signed with the EIP-191 prefix.
func (d *Dispatcher) ethSign(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(2, 2); err != nil {
		return nil, err
	}
	addr, err := c.address(0, "address")
	if err != nil {
		return nil, err
	}
	raw, err := c.string(1, "message")
	if err != nil {
		return nil, err
	}
	return d.signPersonal(ctx, c, addr, raw)
}

// personalSign takes [message, address]. Some dapps send the reverse order.
func (d *Dispatcher) personalSign(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(2, 3); err != nil {
		return nil, err
	}
	first, err := c.string(0, "message")
	if err != nil {
		return nil, err
	}
	second, err := c.string(1, "address")
	if err != nil {
		return nil, err
	}
	if common.IsHexAddress(strings.TrimSpace(first)) && !common.IsHexAddress(strings.TrimSpace(second)) {
		first, second = second, first
	}
	addr, err := parseAddress(second, "address")
	if err != nil {
		return nil, err
	}
	return d.signPersonal(ctx, c, addr, first)
}

func (d *Dispatcher) signPersonal(ctx context.Context, c *Call, addr common.Address, rawMsg string) (any, error) {
	s, cur, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}
	if addr != cur {
		return nil, errAddressMismatch
	}
	msg, err := parseSignMessage(rawMsg)
	if err != nil {
		return nil, err
	}

	if err := d.approve(ctx, c, approval.SignatureRequest{Address: cur, Method: c.Method, Message: displayMessage(msg)}); err != nil {
		return nil, err
	}

	return d.withSigner(ctx, s, cur, func(sg *vault.Signer) (any, error) {
		sig, err := sg.SignPersonal(msg)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(sig), nil
	})
}

// signTypedDataV4 takes [address, typedData] where typedData is a JSON
// string or object.
func (d *Dispatcher) signTypedDataV4(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(2, 2); err != nil {
		return nil, err
	}
	addr, err := c.address(0, "address")
	if err != nil {
		return nil, err
	}

	var typed []byte
	var asString string
	if err := json.Unmarshal(c.Params[1], &asString); err == nil {
		typed = []byte(asString)
	} else {
		typed = c.Params[1]
	}
	if _, err := vault.TypedDataHash(typed); err != nil {
		return nil, invalidParams("invalid typed data: %v", err)
	}

	s, cur, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}
	if addr != cur {
		return nil, errAddressMismatch
	}

	if err := d.approve(ctx, c, approval.SignatureRequest{Address: cur, Method: c.Method, Message: string(typed)}); err != nil {
		return nil, err
	}

	return d.withSigner(ctx, s, cur, func(sg *vault.Signer) (any, error) {
		sig, err := sg.SignTypedData(typed)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(sig), nil
	})
}

func (d *Dispatcher) approve(ctx context.Context, c *Call, req approval.SignatureRequest) error {
	approved, err := d.approvals.RequestSignature(ctx, c.Origin, req)
	if err != nil {
		return err
	}
	if !approved {
		return userRejected("")
	}
	return nil
}

func (d *Dispatcher) withSigner(ctx context.Context, s vault.Session, addr common.Address, fn func(*vault.Signer) (any, error)) (any, error) {
	sg, err := d.vault.Signer(ctx, s, addr)
	if err != nil {
		return nil, err
	}
	defer sg.Wipe()
	return fn(sg)
}
