package http

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

type errorResp struct {
	Error string `json:"error"`
}

type pairExchangeReq struct {
	PairID string `json:"pair_id"`
	Code   string `json:"code"`
}

type pairExchangeResp struct {
	OK     bool   `json:"ok"`
	Token  string `json:"token"`
	Header string `json:"header"`
}

type unlockReq struct {
	Password string `json:"password" binding:"required"`
}

type unlockResp struct {
	Session string `json:"session"`
	Header  string `json:"header"`
}

type vaultStatusResp struct {
	Initialized    bool            `json:"initialized"`
	Unlocked       bool            `json:"unlocked"`
	CurrentAccount *common.Address `json:"currentAccount,omitempty"`
}

type accountsResp struct {
	Accounts []vault.Account        `json:"accounts"`
	Wallets  []vault.MnemonicWallet `json:"wallets"`
	Current  *common.Address        `json:"current,omitempty"`
}

type createAccountReq struct {
	Name string `json:"name"`
}

type importKeyReq struct {
	PrivateKey string `json:"privateKey" binding:"required"`
	Name       string `json:"name"`
}

type importMnemonicReq struct {
	Mnemonic   string `json:"mnemonic" binding:"required"`
	Passphrase string `json:"passphrase"`
	Count      int    `json:"count"`
}

type deriveReq struct {
	WalletID string `json:"walletId" binding:"required"`
	Name     string `json:"name"`
}

type selectReq struct {
	Address string `json:"address" binding:"required"`
}

type renameReq struct {
	Name string `json:"name" binding:"required"`
}

type exportKeyResp struct {
	Address    common.Address `json:"address"`
	PrivateKey string         `json:"privateKey"`
}

type exportMnemonicResp struct {
	WalletID string `json:"walletId"`
	Mnemonic string `json:"mnemonic"`
}

type approvalsResp struct {
	Approvals []approval.Prompt `json:"approvals"`
}

type decisionReq struct {
	Approved *bool `json:"approved" binding:"required"`
}

type permissionsResp struct {
	Permissions []permissions.Record `json:"permissions"`
}

type chainsResp struct {
	Chains  []chains.ChainConfig `json:"chains"`
	Current string               `json:"current"`
}

type switchChainReq struct {
	ChainID string `json:"chainId" binding:"required"`
}

type tabsResp struct {
	Tabs []tabInfo `json:"tabs"`
}

type tabInfo struct {
	Tab    string `json:"tab"`
	Origin string `json:"origin"`
}

type healthResp struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}
