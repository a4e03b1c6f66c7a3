package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// Pair trades the code printed at startup for an extension token.
// POST /pair
func (h *Handler) Pair(c *gin.Context) {
	var req pairExchangeReq
	if !bindJSON(c, &req) {
		return
	}
	req.PairID = strings.TrimSpace(req.PairID)
	req.Code = strings.TrimSpace(req.Code)
	if req.PairID == "" || req.Code == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: PairingErrorMissingPairIDOrCodeText})
		return
	}

	token, err := h.pairings.Exchange(req.PairID, req.Code)
	if err != nil {
		log.Warn("pairing rejected", "pairId", req.PairID, "error", err)
		writeError(c, err)
		return
	}

	log.Info("extension paired", "pairId", req.PairID)
	c.JSON(http.StatusOK, pairExchangeResp{OK: true, Token: token, Header: HeaderExtensionToken})
}
