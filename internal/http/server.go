// Package http is the loopback API of the host: extension pairing, the
// provider relay websocket, and the approval page with its vault screens.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/pairing"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/rpc"
	"github.com/quantumauth-io/wallet-bridge/internal/transport/wsbus"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

type Deps struct {
	Vault      *vault.Vault
	Dispatcher *rpc.Dispatcher
	Chains     *chains.Directory
	Ledger     *permissions.Ledger
	Approvals  *approval.Service
	Assets     *assets.Manager
	Hub        *wsbus.Hub
	Pairings   *pairing.Table

	// UIToken gates /api. Empty means a fresh random token.
	UIToken string
	Version string
}

type Handler struct {
	vault     *vault.Vault
	disp      *rpc.Dispatcher
	chains    *chains.Directory
	ledger    *permissions.Ledger
	approvals *approval.Service
	assets    *assets.Manager
	hub       *wsbus.Hub
	pairings  *pairing.Table

	uiToken   string
	version   string
	startedAt time.Time
}

func NewHandler(d Deps) (*Handler, error) {
	if d.Vault == nil || d.Dispatcher == nil || d.Chains == nil || d.Ledger == nil ||
		d.Approvals == nil || d.Assets == nil || d.Hub == nil || d.Pairings == nil {
		return nil, errors.New("http: missing dependency")
	}
	uiToken := d.UIToken
	if uiToken == "" {
		t, err := pairing.NewToken()
		if err != nil {
			return nil, err
		}
		uiToken = t
	}
	return &Handler{
		vault:     d.Vault,
		disp:      d.Dispatcher,
		chains:    d.Chains,
		ledger:    d.Ledger,
		approvals: d.Approvals,
		assets:    d.Assets,
		hub:       d.Hub,
		pairings:  d.Pairings,
		uiToken:   uiToken,
		version:   d.Version,
		startedAt: time.Now().UTC(),
	}, nil
}

// UIToken is the value the approval page must send in HeaderUI.
func (h *Handler) UIToken() string { return h.uiToken }

// Server owns the listener for the router built over a Handler.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// NewServer binds addr immediately so callers learn about a taken port
// before anything is announced.
func NewServer(addr string, h *Handler) (*Server, error) {
	router, err := NewRouter(h)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		srv: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		ln: ln,
	}, nil
}

// Addr is the bound address, useful when addr used port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	log.Info("http server listening", "addr", s.Addr())
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
