// Package app wires the host together and runs it until its context ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/cmd/wallet-bridge/config"
	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/constants"
	"github.com/quantumauth-io/wallet-bridge/internal/helpers"
	clienthttp "github.com/quantumauth-io/wallet-bridge/internal/http"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
	"github.com/quantumauth-io/wallet-bridge/internal/pairing"
	"github.com/quantumauth-io/wallet-bridge/internal/pending"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/relay"
	"github.com/quantumauth-io/wallet-bridge/internal/rpc"
	"github.com/quantumauth-io/wallet-bridge/internal/securefile"
	"github.com/quantumauth-io/wallet-bridge/internal/transport/wsbus"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

const shutdownTimeout = 5 * time.Second

type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Options are the test seams of Run.
type Options struct {
	// Ready, when set, receives the bound address once the server listens.
	Ready func(addr string)
	// Dialer replaces the ethclient dialer of the chain directory.
	Dialer chains.DialFunc
	// Launcher replaces the launcher picked from config.
	Launcher approval.Launcher
}

func Run(ctx context.Context, cfg *config.Config, build BuildInfo, opts ...Options) error {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	log.Info(constants.AppName,
		"version", build.Version,
		"commit", build.Commit,
		"build_date", build.BuildDate,
	)

	// ---- Store
	store, err := openStore(cfg.Settings)
	if err != nil {
		return err
	}
	defer func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Error("store close failed", "error", err)
			}
		}
	}()

	// ---- Vault
	v, err := vault.New(store, vault.WithSessionTTL(cfg.SessionTTL()))
	if err != nil {
		return err
	}

	// ---- Chains
	var chainOpts []chains.Option
	if o.Dialer != nil {
		chainOpts = append(chainOpts, chains.WithDialer(o.Dialer))
	}
	dir, err := chains.New(ctx, store, cfg.Chains, cfg.DefaultChain, chainOpts...)
	if err != nil {
		return err
	}
	defer dir.Close()

	// ---- Permissions
	ledger, err := permissions.New(ctx, store)
	if err != nil {
		return err
	}

	// ---- Approvals
	reg := pending.NewRegistry()
	defer reg.Close()

	uiToken, err := pairing.NewToken()
	if err != nil {
		return err
	}

	// The launcher needs the bound address, which is only known after listen.
	var launch approval.Launcher = o.Launcher
	var baseURL string
	if launch == nil {
		launch = approval.LauncherFunc(func(ctx context.Context, p approval.Prompt) error {
			if !cfg.Settings.OpenBrowser {
				return approval.LogLauncher{BaseURL: baseURL, UIToken: uiToken}.Launch(ctx, p)
			}
			if err := (approval.BrowserLauncher{BaseURL: baseURL, UIToken: uiToken}).Launch(ctx, p); err != nil {
				log.Warn("could not open browser, falling back to log", "error", err)
				return approval.LogLauncher{BaseURL: baseURL, UIToken: uiToken}.Launch(ctx, p)
			}
			return nil
		})
	}
	approvals := approval.NewService(reg, launch, cfg.ApprovalTimeout())

	// ---- Dispatcher
	am := assets.NewManager(store)
	disp, err := rpc.New(rpc.Deps{
		Vault:     v,
		Chains:    dir,
		Ledger:    ledger,
		Approvals: approvals,
		Assets:    am,
	})
	if err != nil {
		return err
	}

	// ---- Relay
	hub := wsbus.NewHub()
	defer hub.Close()

	rl := relay.New(disp, hub)
	hub.SetHandler(func(ctx context.Context, from relay.Destination, m relay.Message) {
		if err := rl.Inbound(ctx, from, m); err != nil {
			log.Warn("relay inbound rejected", "tab", from.Tab, "type", m.Type(), "error", err)
		}
	})
	disp.SetNotifier(rl)

	// ---- HTTP
	pairings := pairing.NewTable(pairing.DefaultTTL)
	h, err := clienthttp.NewHandler(clienthttp.Deps{
		Vault:      v,
		Dispatcher: disp,
		Chains:     dir,
		Ledger:     ledger,
		Approvals:  approvals,
		Assets:     am,
		Hub:        hub,
		Pairings:   pairings,
		UIToken:    uiToken,
		Version:    build.Version,
	})
	if err != nil {
		return err
	}
	srv, err := clienthttp.NewServer(cfg.Addr(), h)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	baseURL = "http://" + srv.Addr()

	if cfg.Settings.UnlockOnStart {
		if err := unlockFromTerminal(ctx, v, disp); err != nil {
			log.Warn("vault stays locked", "error", err)
		}
	}

	offer, err := pairings.Issue()
	if err != nil {
		return err
	}
	log.Info("pair the browser extension",
		"server", baseURL,
		"ui", baseURL+"/#ui="+url.QueryEscape(uiToken),
		"pair_id", offer.PairID,
		"code", offer.Code,
		"expires", offer.ExpiresAt.Format(time.RFC3339),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	if o.Ready != nil {
		o.Ready(srv.Addr())
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server error", "error", err)
			return err
		}
	}

	// Pending approvals fail with "shutdown" before the tabs go away.
	reg.Close()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	log.Info("HTTP server gracefully stopped")
	return nil
}

func openStore(s *config.Settings) (kvstore.KeyValueStore, error) {
	if s.Storage == constants.StorageBackendMemory {
		log.Warn("using in-memory storage, nothing will persist")
		return kvstore.NewMemory(), nil
	}

	dataDir := s.DataDir
	if dataDir == "" {
		d, err := securefile.DataDir(constants.AppName)
		if err != nil {
			return nil, err
		}
		dataDir = d
	}

	switch s.Storage {
	case constants.StorageBackendFile:
		return kvstore.NewFileStore(filepath.Join(dataDir, constants.StoreDirName))
	default:
		return kvstore.NewBadgerStore(filepath.Join(dataDir, constants.BadgerDirName))
	}
}

func unlockFromTerminal(ctx context.Context, v *vault.Vault, disp *rpc.Dispatcher) error {
	if !helpers.IsTerminal() {
		return helpers.ErrNotTerminal
	}

	initialized, err := v.IsInitialized(ctx)
	if err != nil {
		return err
	}

	var pw []byte
	if initialized {
		pw, err = helpers.PromptPassword("Vault password: ")
	} else {
		pw, err = helpers.PromptNewPassword()
	}
	if err != nil {
		return err
	}
	defer helpers.ZeroBytes(pw)

	s, err := v.Unlock(ctx, pw)
	if err != nil {
		if errors.Is(err, vault.ErrWrongPassword) {
			return err
		}
		return fmt.Errorf("unlock: %w", err)
	}
	disp.Attach(ctx, s)
	log.Info("vault unlocked")
	return nil
}
