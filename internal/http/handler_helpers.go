package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

// bindJSON decodes the body into dst or answers 400.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: HTTPErrorInvalidJSONText + ": " + err.Error()})
		return false
	}
	return true
}

// addressParam reads the :address path parameter or answers 400.
func addressParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "invalid address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// sessionFrom returns the session set by requireVaultSession.
func sessionFrom(c *gin.Context) vault.Session {
	s, _ := c.Get(ctxKeySession)
	out, _ := s.(vault.Session)
	return out
}
