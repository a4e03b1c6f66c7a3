package http

import (
	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), loopbackOnly(), corsPolicy())

	r.GET("/healthz", h.Health)
	r.POST("/pair", h.Pair)

	relay := r.Group("/relay", h.requireExtension())
	{
		relay.GET("/ws", h.RelayWS)
		relay.GET("/tabs", h.Tabs)
	}

	api := r.Group("/api", sameOriginOnly(), h.requireUIToken())
	{
		api.GET("/vault/status", h.VaultStatus)
		api.POST("/vault/unlock", h.Unlock)

		api.GET("/chains", h.ListChains)

		api.GET("/approvals", h.ListApprovals)
		api.GET("/approvals/:id", h.GetApproval)
		api.POST("/approvals/:id", h.DecideApproval)

		api.GET("/accounts/:address/qr", h.AccountQR)
	}

	authed := api.Group("", h.requireVaultSession())
	{
		authed.POST("/vault/lock", h.Lock)
		authed.POST("/vault/reset", h.Reset)
		authed.GET("/vault/accounts", h.ListAccounts)
		authed.POST("/vault/accounts", h.CreateAccount)
		authed.POST("/vault/accounts/import", h.ImportKey)
		authed.POST("/vault/accounts/select", h.SelectAccount)
		authed.POST("/vault/accounts/:address/name", h.RenameAccount)
		authed.POST("/vault/accounts/:address/export", h.ExportKey)
		authed.POST("/vault/mnemonics", h.ImportMnemonic)
		authed.POST("/vault/mnemonics/derive", h.DeriveAccount)
		authed.POST("/vault/mnemonics/:id/export", h.ExportMnemonic)

		authed.GET("/permissions", h.ListPermissions)
		authed.DELETE("/permissions", h.RevokePermission)

		authed.POST("/chains", h.AddChain)
		authed.POST("/chains/current", h.SwitchChain)
		authed.DELETE("/chains/:chainId", h.RemoveChain)

		authed.GET("/assets", h.ListAssets)
		authed.DELETE("/assets/:address", h.RemoveAsset)
	}

	if err := attachUI(r); err != nil {
		return nil, err
	}
	return r, nil
}
