package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/constants"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("WALLET_BRIDGE_PORT", "7000")
	t.Setenv("WALLET_BRIDGE_STORAGE", "file")
	t.Setenv("WALLET_BRIDGE_APPROVAL_TIMEOUT_SECONDS", "30")
	t.Setenv("WALLET_BRIDGE_OPEN_BROWSER", "false")

	cfg := &Config{Settings: &Settings{Host: "127.0.0.1", Port: "6137", Storage: "badger", OpenBrowser: true, ApprovalTimeoutSeconds: 300}}
	require.NoError(t, cfg.ApplyEnv())
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, "7000", cfg.Settings.Port)
	assert.Equal(t, constants.StorageBackendFile, cfg.Settings.Storage)
	assert.Equal(t, 30*time.Second, cfg.ApprovalTimeout())
	assert.False(t, cfg.Settings.OpenBrowser)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr())
}

func TestApplyEnvLeavesUnsetValues(t *testing.T) {
	cfg := &Config{Settings: &Settings{Port: "6137", OpenBrowser: true, ApprovalTimeoutSeconds: 120}}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "6137", cfg.Settings.Port)
	assert.True(t, cfg.Settings.OpenBrowser)
	assert.Equal(t, 120, cfg.Settings.ApprovalTimeoutSeconds)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Setenv("WALLET_BRIDGE_APPROVAL_TIMEOUT_SECONDS", "soon")
	cfg := &Config{}
	require.Error(t, cfg.ApplyEnv())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name: "defaults",
			cfg:  Config{},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "127.0.0.1:6137", c.Addr())
				assert.Equal(t, constants.StorageBackendBadger, c.Settings.Storage)
				assert.Equal(t, chains.SepoliaChainID, c.DefaultChain)
				assert.Len(t, c.Chains, len(chains.DefaultChains()))
			},
		},
		{
			name: "decimal default chain",
			cfg:  Config{DefaultChain: "137"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, chains.PolygonChainID, c.DefaultChain)
			},
		},
		{name: "public host", cfg: Config{Settings: &Settings{Host: "0.0.0.0"}}, wantErr: true},
		{name: "bad port", cfg: Config{Settings: &Settings{Port: "http"}}, wantErr: true},
		{name: "bad storage", cfg: Config{Settings: &Settings{Storage: "sqlite"}}, wantErr: true},
		{name: "negative timeout", cfg: Config{Settings: &Settings{ApprovalTimeoutSeconds: -1}}, wantErr: true},
		{name: "bad chain", cfg: Config{DefaultChain: "mainnet"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.cfg
			err := c.Normalize()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, &c)
		})
	}
}
