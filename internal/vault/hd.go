package vault

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

const (
	// DerivationPathFormat is the BIP-44 Ethereum external chain.
	DerivationPathFormat = "m/44'/60'/0'/0/%d"

	MaxDerivedAccounts = 100

	bip44Purpose = 44
	coinTypeETH  = 60
)

// GenerateMnemonic returns a fresh 12-word BIP-39 phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// NormalizeMnemonic lowercases the phrase and collapses whitespace.
func NormalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(m)), " ")
}

// ValidateMnemonic checks word list membership and the checksum.
func ValidateMnemonic(m string) error {
	if !bip39.IsMnemonicValid(NormalizeMnemonic(m)) {
		return ErrInvalidMnemonic
	}
	return nil
}

func DerivationPath(index uint32) string {
	return fmt.Sprintf(DerivationPathFormat, index)
}

// DeriveKey derives the key at m/44'/60'/0'/0/index.
func DeriveKey(mnemonic, passphrase string, index uint32) (*ecdsa.PrivateKey, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidAccountCount, index)
	}

	seed, err := bip39.NewSeedWithErrorChecking(NormalizeMnemonic(mnemonic), passphrase)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	defer zeroBytes(seed)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + bip44Purpose,
		hdkeychain.HardenedKeyStart + coinTypeETH,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}

	key := master
	for _, child := range path {
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", DerivationPath(index), err)
		}
	}

	ecPriv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("ec priv key: %w", err)
	}

	raw := ecPriv.Serialize()
	defer zeroBytes(raw)

	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("to ecdsa: %w", err)
	}
	return priv, nil
}

// DeriveAddress is DeriveKey reduced to the public address.
func DeriveAddress(mnemonic, passphrase string, index uint32) (common.Address, error) {
	priv, err := DeriveKey(mnemonic, passphrase, index)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

func mnemonicID(mnemonic string) string {
	h := crypto.Keccak256([]byte("wallet-bridge:mnemonic:" + mnemonic))
	return fmt.Sprintf("%x", h[:8])
}
