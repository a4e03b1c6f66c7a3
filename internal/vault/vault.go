// Package vault keeps accounts and mnemonics sealed under one password and
// hands out Signers to callers holding an unlocked Session.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/constants"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
	"github.com/quantumauth-io/wallet-bridge/internal/securefile"
)

const (
	DefaultSessionTTL = 15 * time.Minute

	verifierCheck = "wallet-bridge-vault"
)

type Vault struct {
	store kvstore.KeyValueStore

	// mu serializes every decrypt, mutate, re-encrypt, persist cycle.
	mu sync.Mutex

	sessions *sessionTable
	kdf      securefile.KDFParams
	now      func() time.Time
}

type Option func(*Vault)

func WithKDF(p securefile.KDFParams) Option {
	return func(v *Vault) { v.kdf = p }
}

// WithSessionTTL sets the idle timeout. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(v *Vault) { v.sessions.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
		v.sessions.now = now
	}
}

func New(store kvstore.KeyValueStore, opts ...Option) (*Vault, error) {
	if store == nil {
		return nil, errors.New("vault: nil store")
	}
	v := &Vault{
		store:    store,
		kdf:      securefile.DefaultKDF,
		now:      time.Now,
		sessions: newSessionTable(DefaultSessionTTL, time.Now),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// IsInitialized reports whether a password has been set.
func (v *Vault) IsInitialized(ctx context.Context) (bool, error) {
	for _, key := range []string{constants.KeyPasswordVerifier, constants.KeyAccountsBlob} {
		_, err := v.store.Get(ctx, key)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// Unlock checks password against the stored verifier and returns a new
// Session. On first use the password becomes the vault password.
func (v *Vault) Unlock(ctx context.Context, password []byte) (Session, error) {
	if len(password) == 0 {
		return "", securefile.ErrEmptyPassword
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	sealed, err := v.store.Get(ctx, constants.KeyPasswordVerifier)
	switch {
	case err == nil:
		if _, err := securefile.OpenJSON[verifierRecord](sealed, password, v.opts(constants.VerifierAAD)); err != nil {
			if errors.Is(err, securefile.ErrInvalidPasswordOrCorrupt) {
				return "", ErrWrongPassword
			}
			return "", err
		}

	case errors.Is(err, kvstore.ErrNotFound):
		// Vaults written before the verifier existed are checked against the blob.
		blob, err := v.store.Get(ctx, constants.KeyAccountsBlob)
		if err == nil {
			if _, err := securefile.OpenJSON[accountsBlob](blob, password, v.opts(constants.AccountsAAD)); err != nil {
				return "", ErrWrongPassword
			}
		} else if !errors.Is(err, kvstore.ErrNotFound) {
			return "", err
		}
		if err := v.writeVerifier(ctx, password); err != nil {
			return "", err
		}
		log.Info("vault initialized")

	default:
		return "", fmt.Errorf("read verifier: %w", err)
	}

	return v.sessions.issue(password)
}

func (v *Vault) Lock(s Session) {
	v.sessions.revoke(s)
}

// Valid reports whether s is a live session. It refreshes the idle timer.
func (v *Vault) Valid(s Session) bool {
	return v.sessions.valid(s)
}

func (v *Vault) CreateAccount(ctx context.Context, s Session, name string) (Account, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return Account{}, err
	}
	defer zeroBytes(pw)

	key, err := newRandomKey()
	if err != nil {
		return Account{}, err
	}
	defer wipeKey(key)

	v.mu.Lock()
	defer v.mu.Unlock()

	blob, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return Account{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Account %d", len(blob.Accounts)+1)
	}

	acct := storedAccount{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex: privKeyHex(key),
		Name:       name,
		Source:     SourceCreated,
		CreatedAt:  v.now().UTC(),
	}
	blob.Accounts = upsertAccount(blob.Accounts, acct)

	if err := v.saveAccounts(ctx, pw, blob); err != nil {
		return Account{}, err
	}
	if err := v.ensureCurrent(ctx, acct.Address); err != nil {
		return Account{}, err
	}

	log.Info("account created", "address", acct.Address)
	return acct.public(), nil
}

// ImportPrivateKey stores rawKey. Importing an address that already exists
// replaces the earlier record.
func (v *Vault) ImportPrivateKey(ctx context.Context, s Session, rawKey, name string) (Account, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return Account{}, err
	}
	defer zeroBytes(pw)

	key, err := ParsePrivateKey(rawKey)
	if err != nil {
		return Account{}, err
	}
	defer wipeKey(key)

	v.mu.Lock()
	defer v.mu.Unlock()

	blob, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return Account{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		imported := 0
		for _, a := range blob.Accounts {
			if a.Source == SourceImported {
				imported++
			}
		}
		name = fmt.Sprintf("Imported Account %d", imported+1)
	}

	acct := storedAccount{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex: privKeyHex(key),
		Name:       name,
		Source:     SourceImported,
		CreatedAt:  v.now().UTC(),
	}
	blob.Accounts = upsertAccount(blob.Accounts, acct)

	if err := v.saveAccounts(ctx, pw, blob); err != nil {
		return Account{}, err
	}
	if err := v.ensureCurrent(ctx, acct.Address); err != nil {
		return Account{}, err
	}

	log.Info("account imported", "address", acct.Address)
	return acct.public(), nil
}

// ImportMnemonic derives count accounts from mnemonic and stores both the
// accounts and the wallet record. The same mnemonic replaces its old record.
func (v *Vault) ImportMnemonic(ctx context.Context, s Session, mnemonic, passphrase string, count int) (MnemonicWallet, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return MnemonicWallet{}, err
	}
	defer zeroBytes(pw)

	mnemonic = NormalizeMnemonic(mnemonic)
	if err := ValidateMnemonic(mnemonic); err != nil {
		return MnemonicWallet{}, err
	}
	if count <= 0 || count > MaxDerivedAccounts {
		return MnemonicWallet{}, fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidAccountCount, count, MaxDerivedAccounts)
	}

	now := v.now().UTC()
	wallet := storedMnemonic{
		ID:         mnemonicID(mnemonic),
		Mnemonic:   mnemonic,
		Passphrase: passphrase,
		CreatedAt:  now,
	}
	derived := make([]storedAccount, 0, count)
	for i := 0; i < count; i++ {
		acct, err := deriveStored(mnemonic, passphrase, uint32(i), fmt.Sprintf("HD Account %d", i+1), now)
		if err != nil {
			return MnemonicWallet{}, err
		}
		derived = append(derived, acct)
		wallet.Accounts = append(wallet.Accounts, mnemonicRef{Index: uint32(i), Address: acct.Address})
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	accts, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return MnemonicWallet{}, err
	}
	wallets, err := v.loadMnemonics(ctx, pw)
	if err != nil {
		return MnemonicWallet{}, err
	}

	for _, a := range derived {
		accts.Accounts = upsertAccount(accts.Accounts, a)
	}
	wallets.Wallets = upsertMnemonic(wallets.Wallets, wallet)

	// Accounts first: a wallet record must never name unsaved accounts.
	if err := v.saveAccounts(ctx, pw, accts); err != nil {
		return MnemonicWallet{}, err
	}
	if err := v.saveMnemonics(ctx, pw, wallets); err != nil {
		return MnemonicWallet{}, err
	}
	if err := v.ensureCurrent(ctx, derived[0].Address); err != nil {
		return MnemonicWallet{}, err
	}

	log.Info("mnemonic imported", "wallet", wallet.ID, "accounts", count)
	return publicWallet(wallet, accts.Accounts), nil
}

// DeriveNextAccount derives the next unused index of a stored mnemonic.
func (v *Vault) DeriveNextAccount(ctx context.Context, s Session, walletID, name string) (Account, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return Account{}, err
	}
	defer zeroBytes(pw)

	v.mu.Lock()
	defer v.mu.Unlock()

	wallets, err := v.loadMnemonics(ctx, pw)
	if err != nil {
		return Account{}, err
	}
	wi := -1
	for i := range wallets.Wallets {
		if wallets.Wallets[i].ID == walletID {
			wi = i
			break
		}
	}
	if wi < 0 {
		return Account{}, ErrWalletNotFound
	}
	w := &wallets.Wallets[wi]

	var next uint32
	for _, ref := range w.Accounts {
		if ref.Index >= next {
			next = ref.Index + 1
		}
	}
	if next >= MaxDerivedAccounts {
		return Account{}, fmt.Errorf("%w: wallet already has %d accounts", ErrInvalidAccountCount, next)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("HD Account %d", next+1)
	}
	acct, err := deriveStored(w.Mnemonic, w.Passphrase, next, name, v.now().UTC())
	if err != nil {
		return Account{}, err
	}
	w.Accounts = append(w.Accounts, mnemonicRef{Index: next, Address: acct.Address})

	accts, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return Account{}, err
	}
	accts.Accounts = upsertAccount(accts.Accounts, acct)

	if err := v.saveAccounts(ctx, pw, accts); err != nil {
		return Account{}, err
	}
	if err := v.saveMnemonics(ctx, pw, wallets); err != nil {
		return Account{}, err
	}

	log.Info("account derived", "wallet", walletID, "index", next, "address", acct.Address)
	return acct.public(), nil
}

func (v *Vault) Accounts(ctx context.Context, s Session) ([]Account, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(pw)

	blob, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(blob.Accounts))
	for _, a := range blob.Accounts {
		out = append(out, a.public())
	}
	return out, nil
}

func (v *Vault) MnemonicWallets(ctx context.Context, s Session) ([]MnemonicWallet, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(pw)

	wallets, err := v.loadMnemonics(ctx, pw)
	if err != nil {
		return nil, err
	}
	accts, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return nil, err
	}

	out := make([]MnemonicWallet, 0, len(wallets.Wallets))
	for _, w := range wallets.Wallets {
		out = append(out, publicWallet(w, accts.Accounts))
	}
	return out, nil
}

func (v *Vault) Account(ctx context.Context, s Session, addr common.Address) (Account, error) {
	a, err := v.findAccount(ctx, s, addr)
	if err != nil {
		return Account{}, err
	}
	return a.public(), nil
}

// ExportPrivateKey returns the 0x-prefixed key of addr.
func (v *Vault) ExportPrivateKey(ctx context.Context, s Session, addr common.Address) (string, error) {
	a, err := v.findAccount(ctx, s, addr)
	if err != nil {
		return "", err
	}
	log.Warn("private key exported", "address", a.Address)
	return "0x" + a.PrivKeyHex, nil
}

func (v *Vault) ExportMnemonic(ctx context.Context, s Session, walletID string) (string, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return "", err
	}
	defer zeroBytes(pw)

	wallets, err := v.loadMnemonics(ctx, pw)
	if err != nil {
		return "", err
	}
	for _, w := range wallets.Wallets {
		if w.ID == walletID {
			log.Warn("mnemonic exported", "wallet", walletID)
			return w.Mnemonic, nil
		}
	}
	return "", ErrWalletNotFound
}

func (v *Vault) RenameAccount(ctx context.Context, s Session, addr common.Address, name string) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, ErrInvalidName
	}

	pw, err := v.sessions.password(s)
	if err != nil {
		return Account{}, err
	}
	defer zeroBytes(pw)

	v.mu.Lock()
	defer v.mu.Unlock()

	blob, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return Account{}, err
	}
	for i := range blob.Accounts {
		if strings.EqualFold(blob.Accounts[i].Address, addr.Hex()) {
			blob.Accounts[i].Name = name
			if err := v.saveAccounts(ctx, pw, blob); err != nil {
				return Account{}, err
			}
			return blob.Accounts[i].public(), nil
		}
	}
	return Account{}, ErrAccountNotFound
}

// SelectAccount makes addr the current account.
func (v *Vault) SelectAccount(ctx context.Context, s Session, addr common.Address) error {
	if _, err := v.findAccount(ctx, s, addr); err != nil {
		return err
	}
	return kvstore.PutJSON(ctx, v.store, constants.KeyCurrentAccount, addr.Hex())
}

// CurrentAccount returns the selected account. It needs no session.
func (v *Vault) CurrentAccount(ctx context.Context) (common.Address, error) {
	hex, found, err := kvstore.GetJSON[string](ctx, v.store, constants.KeyCurrentAccount)
	if err != nil {
		return common.Address{}, err
	}
	if !found || !common.IsHexAddress(hex) {
		return common.Address{}, ErrNoAccountSelected
	}
	return common.HexToAddress(hex), nil
}

// Signer returns an in-memory signer for addr.
func (v *Vault) Signer(ctx context.Context, s Session, addr common.Address) (*Signer, error) {
	a, err := v.findAccount(ctx, s, addr)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(a.PrivKeyHex)
	if err != nil {
		return nil, fmt.Errorf("stored key for %s: %w", a.Address, err)
	}
	return &Signer{address: common.HexToAddress(a.Address), key: key}, nil
}

// Reset deletes every vault key and revokes all sessions.
func (v *Vault) Reset(ctx context.Context, s Session) error {
	if !v.sessions.valid(s) {
		return ErrLocked
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, key := range []string{
		constants.KeyAccountsBlob,
		constants.KeyMnemonicsBlob,
		constants.KeyCurrentAccount,
		constants.KeyPasswordVerifier,
	} {
		if err := v.store.Delete(ctx, key); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	v.sessions.revokeAll()

	log.Warn("vault reset")
	return nil
}

func (v *Vault) findAccount(ctx context.Context, s Session, addr common.Address) (storedAccount, error) {
	pw, err := v.sessions.password(s)
	if err != nil {
		return storedAccount{}, err
	}
	defer zeroBytes(pw)

	blob, err := v.loadAccounts(ctx, pw)
	if err != nil {
		return storedAccount{}, err
	}
	for _, a := range blob.Accounts {
		if strings.EqualFold(a.Address, addr.Hex()) {
			return a, nil
		}
	}
	return storedAccount{}, ErrAccountNotFound
}

// ensureCurrent selects addr when nothing is selected yet. Caller holds v.mu.
func (v *Vault) ensureCurrent(ctx context.Context, addr string) error {
	_, found, err := kvstore.GetJSON[string](ctx, v.store, constants.KeyCurrentAccount)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return kvstore.PutJSON(ctx, v.store, constants.KeyCurrentAccount, addr)
}

func (v *Vault) opts(aad string) securefile.Options {
	return securefile.Options{KDF: v.kdf, AAD: []byte(aad)}
}

func (v *Vault) writeVerifier(ctx context.Context, pw []byte) error {
	sealed, err := securefile.SealJSON(verifierRecord{Check: verifierCheck, CreatedAt: v.now().UTC()}, pw, v.opts(constants.VerifierAAD))
	if err != nil {
		return fmt.Errorf("seal verifier: %w", err)
	}
	return v.store.Put(ctx, constants.KeyPasswordVerifier, sealed)
}

func (v *Vault) loadAccounts(ctx context.Context, pw []byte) (accountsBlob, error) {
	return loadSealed[accountsBlob](ctx, v.store, constants.KeyAccountsBlob, pw, v.opts(constants.AccountsAAD))
}

func (v *Vault) saveAccounts(ctx context.Context, pw []byte, blob accountsBlob) error {
	blob.Version = constants.SchemaV1
	return saveSealed(ctx, v.store, constants.KeyAccountsBlob, blob, pw, v.opts(constants.AccountsAAD))
}

func (v *Vault) loadMnemonics(ctx context.Context, pw []byte) (mnemonicsBlob, error) {
	return loadSealed[mnemonicsBlob](ctx, v.store, constants.KeyMnemonicsBlob, pw, v.opts(constants.MnemonicsAAD))
}

func (v *Vault) saveMnemonics(ctx context.Context, pw []byte, blob mnemonicsBlob) error {
	blob.Version = constants.SchemaV1
	return saveSealed(ctx, v.store, constants.KeyMnemonicsBlob, blob, pw, v.opts(constants.MnemonicsAAD))
}

// loadSealed returns the zero value when key is absent.
func loadSealed[T any](ctx context.Context, store kvstore.KeyValueStore, key string, pw []byte, opt securefile.Options) (T, error) {
	var zero T
	sealed, err := store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", key, err)
	}
	out, err := securefile.OpenJSON[T](sealed, pw, opt)
	if err != nil {
		if errors.Is(err, securefile.ErrInvalidPasswordOrCorrupt) {
			return zero, ErrWrongPassword
		}
		return zero, fmt.Errorf("open %s: %w", key, err)
	}
	return out, nil
}

func saveSealed[T any](ctx context.Context, store kvstore.KeyValueStore, key string, v T, pw []byte, opt securefile.Options) error {
	sealed, err := securefile.SealJSON(v, pw, opt)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	if err := store.Put(ctx, key, sealed); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func deriveStored(mnemonic, passphrase string, index uint32, name string, now time.Time) (storedAccount, error) {
	key, err := DeriveKey(mnemonic, passphrase, index)
	if err != nil {
		return storedAccount{}, err
	}
	defer wipeKey(key)

	return storedAccount{
		Address:        crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivKeyHex:     privKeyHex(key),
		Name:           name,
		DerivationPath: DerivationPath(index),
		Source:         SourceMnemonic,
		CreatedAt:      now,
	}, nil
}

func upsertAccount(list []storedAccount, a storedAccount) []storedAccount {
	for i := range list {
		if strings.EqualFold(list[i].Address, a.Address) {
			list[i] = a
			return list
		}
	}
	return append(list, a)
}

func upsertMnemonic(list []storedMnemonic, w storedMnemonic) []storedMnemonic {
	for i := range list {
		if list[i].Mnemonic == w.Mnemonic {
			list[i] = w
			return list
		}
	}
	return append(list, w)
}

func publicWallet(w storedMnemonic, accts []storedAccount) MnemonicWallet {
	out := MnemonicWallet{
		ID:            w.ID,
		HasPassphrase: w.Passphrase != "",
		CreatedAt:     w.CreatedAt,
		Accounts:      make([]Account, 0, len(w.Accounts)),
	}
	for _, ref := range w.Accounts {
		for _, a := range accts {
			if strings.EqualFold(a.Address, ref.Address) {
				out.Accounts = append(out.Accounts, a.public())
				break
			}
		}
	}
	return out
}
