package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/wallet-bridge/cmd/wallet-bridge/config"
	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/chains/chainstest"
	"github.com/quantumauth-io/wallet-bridge/internal/constants"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
)

func testConfig(t *testing.T, storage string) *config.Config {
	t.Helper()
	cfg := &config.Config{Settings: &config.Settings{
		Host:    "127.0.0.1",
		Port:    "0",
		Storage: storage,
		DataDir: t.TempDir(),
	}}
	require.NoError(t, cfg.Normalize())
	return cfg
}

func runApp(t *testing.T, cfg *config.Config) (addr string, stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)

	client := chainstest.New(11155111)
	go func() {
		done <- Run(ctx, cfg, BuildInfo{Version: "test"}, Options{
			Ready:    func(a string) { ready <- a },
			Dialer:   func(context.Context, string) (chains.ChainClient, error) { return client, nil },
			Launcher: approval.LauncherFunc(func(context.Context, approval.Prompt) error { return nil }),
		})
	}()

	select {
	case addr = <-ready:
	case err := <-done:
		cancel()
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}

	return addr, func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			return fmt.Errorf("run did not return")
		}
	}
}

func TestRunServesAndStops(t *testing.T) {
	for _, storage := range []string{constants.StorageBackendMemory, constants.StorageBackendFile, constants.StorageBackendBadger} {
		t.Run(storage, func(t *testing.T) {
			addr, stop := runApp(t, testConfig(t, storage))

			resp, err := http.Get("http://" + addr + "/healthz")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "ok", body["status"])
			assert.Equal(t, "test", body["version"])

			require.NoError(t, stop())
		})
	}
}

func TestOpenStoreMemory(t *testing.T) {
	s, err := openStore(&config.Settings{Storage: constants.StorageBackendMemory})
	require.NoError(t, err)
	_, ok := s.(*kvstore.Memory)
	assert.True(t, ok)
}
