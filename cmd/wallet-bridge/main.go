package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/cmd/wallet-bridge/config"
	"github.com/quantumauth-io/wallet-bridge/internal/app"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to parse config", "error", err)
	}

	if err := app.Run(ctx, cfg, app.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}); err != nil {
		log.Error("wallet-bridge exited", "error", err)
		stop()
		os.Exit(1)
	}
}
