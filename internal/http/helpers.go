package http

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/pairing"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/securefile"
	"github.com/quantumauth-io/wallet-bridge/internal/units"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

func isLoopbackRequest(r *http.Request) bool {
	ra := r.RemoteAddr

	h, _, err := net.SplitHostPort(ra)
	if err != nil {
		ip := net.ParseIP(ra)
		return ip != nil && ip.IsLoopback()
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func isSafeLocalHost(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(strings.ToLower(host), "[]")
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

// isExtensionOrigin is the CORS allow list. Extensions still need a
// pairing token on every route they can reach.
func isExtensionOrigin(origin string) bool {
	o := permissions.NormalizeOrigin(origin)
	if o == "" {
		return false
	}
	scheme, _, _ := strings.Cut(o, "://")
	switch scheme {
	case "chrome-extension", "moz-extension", "safari-web-extension":
		return true
	default:
		return false
	}
}

// isSameOrigin reports whether r came from a page this server served.
// Requests without an Origin header are not made by pages.
func isSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.EqualFold(origin, "http://"+r.Host)
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrLocked), errors.Is(err, vault.ErrWrongPassword):
		return http.StatusUnauthorized
	case errors.Is(err, vault.ErrAccountNotFound),
		errors.Is(err, vault.ErrWalletNotFound),
		errors.Is(err, chains.ErrChainNotFound):
		return http.StatusNotFound
	case errors.Is(err, chains.ErrChainInUse):
		return http.StatusConflict
	case errors.Is(err, pairing.ErrExpired):
		return http.StatusGone
	case errors.Is(err, pairing.ErrInvalidCode):
		return http.StatusUnauthorized
	case errors.Is(err, vault.ErrInvalidKey),
		errors.Is(err, vault.ErrInvalidMnemonic),
		errors.Is(err, vault.ErrInvalidAccountCount),
		errors.Is(err, vault.ErrInvalidName),
		errors.Is(err, vault.ErrNoAccountSelected),
		errors.Is(err, chains.ErrInvalidChain),
		errors.Is(err, assets.ErrInvalidToken),
		errors.Is(err, units.ErrInvalidAmount),
		errors.Is(err, permissions.ErrInvalidOrigin),
		errors.Is(err, securefile.ErrEmptyPassword):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with {"error": ...}. Internal errors are logged and
// not echoed.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("host api request failed", "path", c.FullPath(), "error", err)
		msg = HTTPErrorInternalText
	}
	c.AbortWithStatusJSON(status, errorResp{Error: msg})
}
