package rpc

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

func (d *Dispatcher) ethAccounts(ctx context.Context, c *Call) (any, error) {
	if _, ok := d.Session(); !ok {
		return []string{}, nil
	}
	cur, err := d.vault.CurrentAccount(ctx)
	if errors.Is(err, vault.ErrNoAccountSelected) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !d.ledger.Check(c.Origin, cur) {
		return []string{}, nil
	}
	return []string{cur.Hex()}, nil
}

// ethRequestAccounts answers at once for a granted origin. Otherwise every
// call runs its own approval flow.
func (d *Dispatcher) ethRequestAccounts(ctx context.Context, c *Call) (any, error) {
	if _, err := d.requireSession(); err != nil {
		return nil, err
	}
	cur, err := d.vault.CurrentAccount(ctx)
	if err != nil {
		return nil, err
	}
	if d.ledger.Check(c.Origin, cur) {
		return []string{cur.Hex()}, nil
	}

	accounts := []common.Address{cur}
	approved, err := d.approvals.RequestConnection(ctx, c.Origin, accounts)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, userRejected("")
	}

	if _, err := d.ledger.Grant(ctx, c.Origin, accounts); err != nil {
		return nil, err
	}
	log.Info("origin connected", "origin", c.Origin, "account", cur.Hex())
	d.emitAccounts(ctx, c.Origin, accounts)
	return addressStrings(accounts), nil
}

func (d *Dispatcher) walletGetPermissions(_ context.Context, c *Call) (any, error) {
	for _, r := range d.ledger.List() {
		if r.Origin != permissions.NormalizeOrigin(c.Origin) {
			continue
		}
		return []Permission{{
			Invoker:          r.Origin,
			ParentCapability: "eth_accounts",
			Caveats:          []Caveat{{Type: "restrictReturnedAccounts", Value: addressStrings(r.Accounts)}},
			Date:             r.GrantedAt.UnixMilli(),
		}}, nil
	}
	return []Permission{}, nil
}

// walletRevokePermissions takes [{"eth_accounts": {}}] per EIP-2255.
func (d *Dispatcher) walletRevokePermissions(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(1, 1); err != nil {
		return nil, err
	}
	var caps map[string]any
	if err := c.decode(0, "permissions", &caps); err != nil {
		return nil, err
	}
	if _, ok := caps["eth_accounts"]; !ok {
		return nil, invalidParams("only eth_accounts can be revoked")
	}
	if _, err := d.Revoke(ctx, c.Origin); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) walletGenerateMnemonic(_ context.Context, c *Call) (any, error) {
	if err := c.arity(0, 0); err != nil {
		return nil, err
	}
	return vault.GenerateMnemonic()
}

// walletImportMnemonic takes [mnemonic, passphrase?, accountCount?]. The
// origin must be connected and the user shown the derived addresses first.
func (d *Dispatcher) walletImportMnemonic(ctx context.Context, c *Call) (any, error) {
	if err := c.arity(1, 3); err != nil {
		return nil, err
	}
	mnemonic, err := c.string(0, "mnemonic")
	if err != nil {
		return nil, err
	}
	passphrase, err := c.optString(1, "passphrase")
	if err != nil {
		return nil, err
	}
	count := 1
	if c.has(2) {
		if err := c.decode(2, "accountCount", &count); err != nil {
			return nil, err
		}
	}

	s, _, err := d.requireConnected(ctx, c.Origin)
	if err != nil {
		return nil, err
	}

	mnemonic = vault.NormalizeMnemonic(mnemonic)
	if err := vault.ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}
	if count <= 0 || count > vault.MaxDerivedAccounts {
		return nil, invalidParams("accountCount must be 1..%d", vault.MaxDerivedAccounts)
	}
	preview := make([]common.Address, 0, count)
	for i := 0; i < count; i++ {
		addr, err := vault.DeriveAddress(mnemonic, passphrase, uint32(i))
		if err != nil {
			return nil, err
		}
		preview = append(preview, addr)
	}

	approved, err := d.approvals.RequestImport(ctx, c.Origin, approval.ImportRequest{Accounts: preview})
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, userRejected("")
	}

	w, err := d.vault.ImportMnemonic(ctx, s, mnemonic, passphrase, count)
	if err != nil {
		return nil, err
	}
	log.Info("mnemonic imported by page", "origin", c.Origin, "wallet", w.ID, "accounts", len(w.Accounts))
	out := ImportedWallet{ID: w.ID, Accounts: make([]string, 0, len(w.Accounts))}
	for _, a := range w.Accounts {
		out.Accounts = append(out.Accounts, a.Address.Hex())
	}
	return out, nil
}
