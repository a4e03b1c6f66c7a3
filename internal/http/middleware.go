package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

// loopbackOnly rejects callers that are not on this machine or that reach
// us through a non-local Host header (DNS rebinding).
func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isLoopbackRequest(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResp{Error: HTTPErrorForbiddenText})
			return
		}
		if !isSafeLocalHost(c.Request.Host) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResp{Error: HTTPErrorForbiddenHost})
			return
		}
		c.Next()
	}
}

func corsPolicy() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  isExtensionOrigin,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", HeaderExtensionToken},
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	})
}

// sameOriginOnly keeps /api to the approval page. Extension origins pass
// CORS for /pair and /relay but not here.
func sameOriginOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isSameOrigin(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResp{Error: HTTPErrorForbiddenOrigin})
			return
		}
		c.Next()
	}
}

// requireUIToken checks the per-process token the approval page receives
// in its URL fragment.
func (h *Handler) requireUIToken() gin.HandlerFunc {
	want := []byte(h.uiToken)
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderUI)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResp{Error: "missing or invalid " + HeaderUI + " header"})
			return
		}
		c.Next()
	}
}

// requireExtension accepts the pairing token from the header or, for
// websocket upgrades, the token query parameter.
func (h *Handler) requireExtension() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderExtensionToken)
		if token == "" {
			token = c.Query(QueryToken)
		}
		if !h.pairings.Valid(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: HTTPErrorUnauthorizedText})
			return
		}
		c.Next()
	}
}

func (h *Handler) requireVaultSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := vault.Session(c.GetHeader(HeaderVaultSession))
		if s == "" || !h.vault.Valid(s) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: vault.ErrLocked.Error()})
			return
		}
		c.Set(ctxKeySession, s)
		c.Next()
	}
}
