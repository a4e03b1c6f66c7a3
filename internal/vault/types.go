package vault

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Source string

const (
	SourceCreated  Source = "created"
	SourceImported Source = "imported"
	SourceMnemonic Source = "mnemonic"
)

// Account is the public view of a vault account. The private key never
// leaves the vault except through a Signer or an explicit export.
type Account struct {
	Address        common.Address `json:"address"`
	Name           string         `json:"name"`
	DerivationPath string         `json:"derivationPath,omitempty"`
	Source         Source         `json:"source"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type MnemonicWallet struct {
	ID            string    `json:"id"`
	HasPassphrase bool      `json:"hasPassphrase"`
	Accounts      []Account `json:"accounts"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Sealed representations.

type storedAccount struct {
	Address        string    `json:"address"`
	PrivKeyHex     string    `json:"priv_key_hex"`
	Name           string    `json:"name"`
	DerivationPath string    `json:"derivation_path,omitempty"`
	Source         Source    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

type accountsBlob struct {
	Version  int             `json:"version"`
	Accounts []storedAccount `json:"accounts"`
}

type mnemonicRef struct {
	Index   uint32 `json:"index"`
	Address string `json:"address"`
}

type storedMnemonic struct {
	ID         string        `json:"id"`
	Mnemonic   string        `json:"mnemonic"`
	Passphrase string        `json:"passphrase,omitempty"`
	Accounts   []mnemonicRef `json:"accounts"`
	CreatedAt  time.Time     `json:"created_at"`
}

type mnemonicsBlob struct {
	Version int              `json:"version"`
	Wallets []storedMnemonic `json:"wallets"`
}

type verifierRecord struct {
	Check     string    `json:"check"`
	CreatedAt time.Time `json:"created_at"`
}

func (a storedAccount) public() Account {
	return Account{
		Address:        common.HexToAddress(a.Address),
		Name:           a.Name,
		DerivationPath: a.DerivationPath,
		Source:         a.Source,
		CreatedAt:      a.CreatedAt,
	}
}
