package http

import (
	"github.com/gin-gonic/gin"

	"github.com/quantumauth-io/wallet-bridge/internal/httpui"
)

// attachUI serves the approval page for every unmatched route. It goes last
// so it never shadows an API route.
func attachUI(r *gin.Engine) error {
	ui, err := httpui.Handler()
	if err != nil {
		return err
	}
	r.NoRoute(gin.WrapH(ui))
	return nil
}
