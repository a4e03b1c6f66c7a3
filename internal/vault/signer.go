package vault

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer holds one decrypted key. It never touches storage.
type Signer struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

func (s *Signer) Address() common.Address { return s.address }

// SignHash signs a 32-byte digest. V is 0/1.
func (s *Signer) SignHash(digest []byte) ([]byte, error) {
	if s.key == nil {
		return nil, errors.New("signer wiped")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	return crypto.Sign(digest, s.key)
}

// SignPersonal signs msg with the EIP-191 prefix. V is 27/28.
func (s *Signer) SignPersonal(msg []byte) ([]byte, error) {
	sig, err := s.SignHash(PersonalMessageHash(msg))
	if err != nil {
		return nil, err
	}
	return SigToV27(sig)
}

// SignTypedData signs an EIP-712 v4 payload. V is 27/28.
func (s *Signer) SignTypedData(typedDataJSON []byte) ([]byte, error) {
	digest, err := TypedDataHash(typedDataJSON)
	if err != nil {
		return nil, err
	}
	sig, err := s.SignHash(digest)
	if err != nil {
		return nil, err
	}
	return SigToV27(sig)
}

// SignTransaction signs tx for chainID and returns it with its raw encoding.
func (s *Signer) SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, []byte, error) {
	if s.key == nil {
		return nil, nil, errors.New("signer wiped")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, nil, errors.New("chain id required")
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, nil, fmt.Errorf("sign tx: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("encode tx: %w", err)
	}
	return signed, raw, nil
}

// Wipe zeroes the key. The signer is unusable afterwards.
func (s *Signer) Wipe() {
	wipeKey(s.key)
	s.key = nil
}

// PersonalMessageHash is keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PersonalMessageHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// TypedDataHash returns the EIP-712 v4 digest of typedDataJSON.
func TypedDataHash(typedDataJSON []byte) ([]byte, error) {
	var td apitypes.TypedData
	if err := json.Unmarshal(typedDataJSON, &td); err != nil {
		return nil, fmt.Errorf("invalid typed data json: %w", err)
	}

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("domain hash: %w", err)
	}
	msgHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("message hash: %w", err)
	}

	return crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, msgHash), nil
}

// SigToV27 converts V 0/1 to 27/28 and leaves 27/28 unchanged.
func SigToV27(sig65 []byte) ([]byte, error) {
	if len(sig65) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig65))
	}
	out := make([]byte, 65)
	copy(out, sig65)

	switch out[64] {
	case 0, 1:
		out[64] += 27
	case 27, 28:
	default:
		return nil, fmt.Errorf("invalid V value %d", out[64])
	}
	return out, nil
}

// RecoverPersonal returns the address that produced sig over msg.
func RecoverPersonal(msg, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(PersonalMessageHash(msg), s)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
