package vault

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ParsePrivateKey accepts 64 hex chars with or without a 0x prefix.
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s) != 64 {
		return nil, fmt.Errorf("%w: got %d hex chars, want 64", ErrInvalidKey, len(s))
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidKey)
	}
	defer zeroBytes(b)

	k, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

func newRandomKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func privKeyHex(k *ecdsa.PrivateKey) string {
	b := crypto.FromECDSA(k)
	defer zeroBytes(b)
	return hex.EncodeToString(b)
}

func wipeKey(k *ecdsa.PrivateKey) {
	if k != nil && k.D != nil {
		k.D.SetUint64(0)
	}
}
