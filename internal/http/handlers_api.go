package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/skip2/go-qrcode"

	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/pending"
)

// GET /api/approvals
func (h *Handler) ListApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, approvalsResp{Approvals: h.approvals.Pending()})
}

// GET /api/approvals/:id
func (h *Handler) GetApproval(c *gin.Context) {
	p, ok := h.approvals.Prompt(pending.ID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: HTTPErrorNotFoundText})
		return
	}
	c.JSON(http.StatusOK, p)
}

// DecideApproval settles a prompt. A request that already timed out or was
// cancelled answers 404.
// POST /api/approvals/:id
func (h *Handler) DecideApproval(c *gin.Context) {
	var req decisionReq
	if !bindJSON(c, &req) {
		return
	}
	id := pending.ID(c.Param("id"))
	if !h.approvals.Resolve(id, *req.Approved) {
		c.JSON(http.StatusNotFound, errorResp{Error: HTTPErrorNotFoundText})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/permissions
func (h *Handler) ListPermissions(c *gin.Context) {
	c.JSON(http.StatusOK, permissionsResp{Permissions: h.ledger.List()})
}

// DELETE /api/permissions?origin=
func (h *Handler) RevokePermission(c *gin.Context) {
	origin := c.Query(QueryOrigin)
	ok, err := h.disp.Revoke(c.Request.Context(), origin)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, errorResp{Error: HTTPErrorNotFoundText})
		return
	}
	log.Info("origin revoked", "origin", origin)
	c.Status(http.StatusNoContent)
}

// GET /api/chains
func (h *Handler) ListChains(c *gin.Context) {
	c.JSON(http.StatusOK, chainsResp{Chains: h.chains.List(), Current: h.chains.Current().ChainID})
}

// POST /api/chains
func (h *Handler) AddChain(c *gin.Context) {
	var cfg chains.ChainConfig
	if !bindJSON(c, &cfg) {
		return
	}
	out, added, err := h.chains.Add(c.Request.Context(), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

// POST /api/chains/current
func (h *Handler) SwitchChain(c *gin.Context) {
	var req switchChainReq
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.disp.SwitchChain(c.Request.Context(), req.ChainID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// DELETE /api/chains/:chainId
func (h *Handler) RemoveChain(c *gin.Context) {
	if err := h.chains.Remove(c.Request.Context(), c.Param("chainId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/assets lists the tokens watched on the current chain.
func (h *Handler) ListAssets(c *gin.Context) {
	cur := h.chains.Current()
	tokens, err := h.assets.List(c.Request.Context(), cur.ChainID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chainId": cur.ChainID, "tokens": tokens})
}

// DELETE /api/assets/:address?tokenId=
func (h *Handler) RemoveAsset(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	removed, err := h.assets.Remove(c.Request.Context(), h.chains.Current().ChainID, addr.Hex(), c.Query("tokenId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, errorResp{Error: HTTPErrorNotFoundText})
		return
	}
	c.Status(http.StatusNoContent)
}

// AccountQR renders an EIP-681 payment URI for address on the current chain.
// GET /api/accounts/:address/qr?size=
func (h *Handler) AccountQR(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}

	size := qrDefaultSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > qrMaxSize {
			c.JSON(http.StatusBadRequest, errorResp{Error: fmt.Sprintf("size must be 1..%d", qrMaxSize)})
			return
		}
		size = n
	}

	uri := "ethereum:" + addr.Hex()
	if id, err := chains.ChainIDBig(h.chains.Current().ChainID); err == nil {
		uri += "@" + id.String()
	}

	png, err := qrcode.Encode(uri, qrcode.Medium, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
