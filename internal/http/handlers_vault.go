package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// GET /api/vault/status
func (h *Handler) VaultStatus(c *gin.Context) {
	ctx := c.Request.Context()

	initialized, err := h.vault.IsInitialized(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	_, unlocked := h.disp.Session()

	out := vaultStatusResp{Initialized: initialized, Unlocked: unlocked}
	if cur, err := h.vault.CurrentAccount(ctx); err == nil {
		out.CurrentAccount = &cur
	}
	c.JSON(http.StatusOK, out)
}

// Unlock opens the vault, or creates it on first use, and attaches the
// session to page requests.
// POST /api/vault/unlock
func (h *Handler) Unlock(c *gin.Context) {
	var req unlockReq
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	pw := []byte(req.Password)
	s, err := h.vault.Unlock(ctx, pw)
	for i := range pw {
		pw[i] = 0
	}
	if err != nil {
		writeError(c, err)
		return
	}

	h.disp.Attach(ctx, s)
	log.Info("vault unlocked")
	c.JSON(http.StatusOK, unlockResp{Session: string(s), Header: HeaderVaultSession})
}

// POST /api/vault/lock
func (h *Handler) Lock(c *gin.Context) {
	h.vault.Lock(sessionFrom(c))
	h.disp.Detach(c.Request.Context())
	log.Info("vault locked")
	c.Status(http.StatusNoContent)
}

// Reset wipes every account and mnemonic.
// POST /api/vault/reset
func (h *Handler) Reset(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.vault.Reset(ctx, sessionFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	h.disp.Detach(ctx)
	log.Warn("vault reset")
	c.Status(http.StatusNoContent)
}

// GET /api/vault/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	ctx := c.Request.Context()
	s := sessionFrom(c)

	accts, err := h.vault.Accounts(ctx, s)
	if err != nil {
		writeError(c, err)
		return
	}
	wallets, err := h.vault.MnemonicWallets(ctx, s)
	if err != nil {
		writeError(c, err)
		return
	}

	out := accountsResp{Accounts: accts, Wallets: wallets}
	if cur, err := h.vault.CurrentAccount(ctx); err == nil {
		out.Current = &cur
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/vault/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req createAccountReq
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	acct, err := h.vault.CreateAccount(c.Request.Context(), sessionFrom(c), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

// POST /api/vault/accounts/import
func (h *Handler) ImportKey(c *gin.Context) {
	var req importKeyReq
	if !bindJSON(c, &req) {
		return
	}
	acct, err := h.vault.ImportPrivateKey(c.Request.Context(), sessionFrom(c), req.PrivateKey, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

// POST /api/vault/accounts/select
func (h *Handler) SelectAccount(c *gin.Context) {
	var req selectReq
	if !bindJSON(c, &req) {
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "invalid address"})
		return
	}
	addr := common.HexToAddress(req.Address)
	if err := h.disp.SelectAccount(c.Request.Context(), sessionFrom(c), addr); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": addr})
}

// POST /api/vault/accounts/:address/name
func (h *Handler) RenameAccount(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	var req renameReq
	if !bindJSON(c, &req) {
		return
	}
	acct, err := h.vault.RenameAccount(c.Request.Context(), sessionFrom(c), addr, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

// POST /api/vault/accounts/:address/export
func (h *Handler) ExportKey(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	key, err := h.vault.ExportPrivateKey(c.Request.Context(), sessionFrom(c), addr)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, exportKeyResp{Address: addr, PrivateKey: key})
}

// POST /api/vault/mnemonics
func (h *Handler) ImportMnemonic(c *gin.Context) {
	var req importMnemonicReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	w, err := h.vault.ImportMnemonic(c.Request.Context(), sessionFrom(c), req.Mnemonic, req.Passphrase, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// POST /api/vault/mnemonics/derive
func (h *Handler) DeriveAccount(c *gin.Context) {
	var req deriveReq
	if !bindJSON(c, &req) {
		return
	}
	acct, err := h.vault.DeriveNextAccount(c.Request.Context(), sessionFrom(c), req.WalletID, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

// POST /api/vault/mnemonics/:id/export
func (h *Handler) ExportMnemonic(c *gin.Context) {
	id := c.Param("id")
	m, err := h.vault.ExportMnemonic(c.Request.Context(), sessionFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, exportMnemonicResp{WalletID: id, Mnemonic: m})
}

