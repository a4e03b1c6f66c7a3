package vault

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := ParsePrivateKey(abandonKey0)
	require.NoError(t, err)
	return &Signer{address: common.HexToAddress(abandonAddr0), key: key}
}

func TestSignPersonalRecovers(t *testing.T) {
	s := testSigner(t)
	msg := []byte("hello wallet")

	sig, err := s.SignPersonal(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	addr, err := RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
}

func TestSignTypedData(t *testing.T) {
	s := testSigner(t)
	td := []byte(`{
		"types": {
			"EIP712Domain": [
				{"name": "name", "type": "string"},
				{"name": "version", "type": "string"},
				{"name": "chainId", "type": "uint256"}
			],
			"Mail": [
				{"name": "contents", "type": "string"}
			]
		},
		"primaryType": "Mail",
		"domain": {"name": "Test", "version": "1", "chainId": "1"},
		"message": {"contents": "hi"}
	}`)

	sig, err := s.SignTypedData(td)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	again, err := s.SignTypedData(td)
	require.NoError(t, err)
	assert.Equal(t, sig, again, "RFC6979 signatures are deterministic")

	_, err = s.SignTypedData([]byte("{"))
	require.Error(t, err)
}

func TestSignTransaction(t *testing.T) {
	s := testSigner(t)
	chainID := big.NewInt(11155111)
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(10),
	})

	signed, raw, err := s.SignTransaction(tx, chainID)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)

	_, _, err = s.SignTransaction(tx, nil)
	require.Error(t, err)
}

func TestWipe(t *testing.T) {
	s := testSigner(t)
	s.Wipe()
	_, err := s.SignHash(make([]byte, 32))
	require.Error(t, err)
}

func TestSigToV27(t *testing.T) {
	sig := make([]byte, 65)
	out, err := SigToV27(sig)
	require.NoError(t, err)
	assert.Equal(t, byte(27), out[64])
	assert.Equal(t, byte(0), sig[64], "input untouched")

	sig[64] = 5
	_, err = SigToV27(sig)
	require.Error(t, err)

	_, err = SigToV27(sig[:10])
	require.Error(t, err)
}
