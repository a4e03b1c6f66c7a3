package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/relay"
)

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResp{Status: "ok", Version: h.version, StartedAt: h.startedAt})
}

// RelayWS connects one browser tab to the relay.
// GET /relay/ws?tab=&origin=&token=
func (h *Handler) RelayWS(c *gin.Context) {
	tab := c.Query(QueryTab)
	if tab == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "missing " + QueryTab})
		return
	}
	origin := permissions.NormalizeOrigin(c.Query(QueryOrigin))
	if origin == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: permissions.ErrInvalidOrigin.Error()})
		return
	}

	dest := relay.Destination{Tab: relay.TabID(tab), Origin: origin}
	if err := h.hub.ServeWS(c.Writer, c.Request, dest); err != nil {
		log.Warn("relay websocket failed", "tab", tab, "error", err)
	}
}

// GET /relay/tabs
func (h *Handler) Tabs(c *gin.Context) {
	dests := h.hub.Tabs()
	out := tabsResp{Tabs: make([]tabInfo, 0, len(dests))}
	for _, d := range dests {
		out.Tabs = append(out.Tabs, tabInfo{Tab: string(d.Tab), Origin: d.Origin})
	}
	c.JSON(http.StatusOK, out)
}
