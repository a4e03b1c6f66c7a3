package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	utilsconfig "github.com/quantumauth-io/quantum-go-utils/config"

	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/constants"
)

const EnvPrefix = "WALLET_BRIDGE"

type Settings struct {
	Host                   string
	Port                   string
	DataDir                string
	Storage                string
	ApprovalTimeoutSeconds int
	SessionTTLMinutes      int
	OpenBrowser            bool
	UnlockOnStart          bool
}

type Config struct {
	Settings     *Settings            `mapstructure:"Settings"`
	DefaultChain string               `mapstructure:"DefaultChain"`
	Chains       []chains.ChainConfig `mapstructure:"Chains"`
}

// envOverrides are read with the WALLET_BRIDGE_ prefix. Unset variables
// leave the file value alone.
type envOverrides struct {
	Port                   string `envconfig:"PORT"`
	Host                   string `envconfig:"HOST"`
	DataDir                string `envconfig:"DATA_DIR"`
	Storage                string `envconfig:"STORAGE"`
	ApprovalTimeoutSeconds *int   `envconfig:"APPROVAL_TIMEOUT_SECONDS"`
	OpenBrowser            *bool  `envconfig:"OPEN_BROWSER"`
}

func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	paths := []string{
		filepath.Join(home, ".config", constants.AppName),
		filepath.Join(home, "config"),
		".",
	}

	cfg, err := utilsconfig.ParseConfigWithEmbedded[Config](paths, EmbeddedConfigYAML)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() error {
	if c.Settings == nil {
		c.Settings = &Settings{}
	}

	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	s := c.Settings
	if ov.Port != "" {
		s.Port = ov.Port
	}
	if ov.Host != "" {
		s.Host = ov.Host
	}
	if ov.DataDir != "" {
		s.DataDir = ov.DataDir
	}
	if ov.Storage != "" {
		s.Storage = ov.Storage
	}
	if ov.ApprovalTimeoutSeconds != nil {
		s.ApprovalTimeoutSeconds = *ov.ApprovalTimeoutSeconds
	}
	if ov.OpenBrowser != nil {
		s.OpenBrowser = *ov.OpenBrowser
	}
	return nil
}

// Normalize fills defaults and rejects settings the host cannot run with.
func (c *Config) Normalize() error {
	if c.Settings == nil {
		c.Settings = &Settings{}
	}
	s := c.Settings

	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if ip := net.ParseIP(s.Host); s.Host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("host %q is not a loopback address", s.Host)
	}

	s.Port = strings.TrimSpace(s.Port)
	if s.Port == "" {
		s.Port = "6137"
	}
	if p, err := strconv.Atoi(s.Port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", s.Port)
	}

	s.Storage = strings.ToLower(strings.TrimSpace(s.Storage))
	switch s.Storage {
	case "":
		s.Storage = constants.StorageBackendBadger
	case constants.StorageBackendBadger, constants.StorageBackendFile, constants.StorageBackendMemory:
	default:
		return fmt.Errorf("invalid storage %q (allowed: badger, file, memory)", s.Storage)
	}

	if s.ApprovalTimeoutSeconds < 0 {
		return fmt.Errorf("invalid approval timeout %d", s.ApprovalTimeoutSeconds)
	}
	if s.SessionTTLMinutes < 0 {
		return fmt.Errorf("invalid session ttl %d", s.SessionTTLMinutes)
	}

	if len(c.Chains) == 0 {
		c.Chains = chains.DefaultChains()
	}
	if c.DefaultChain == "" {
		c.DefaultChain = chains.SepoliaChainID
	}
	id, err := chains.NormalizeChainID(c.DefaultChain)
	if err != nil {
		return fmt.Errorf("default chain: %w", err)
	}
	c.DefaultChain = id
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Settings.Host, c.Settings.Port)
}

func (c *Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.Settings.ApprovalTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Settings.SessionTTLMinutes) * time.Minute
}
