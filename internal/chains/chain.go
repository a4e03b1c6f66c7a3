// Package chains keeps the EVM chain directory: the configured chains, the
// current one, and cached RPC clients per endpoint.
package chains

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"strings"
)

var (
	ErrChainNotFound = errors.New("unrecognized chain id")
	ErrInvalidChain  = errors.New("invalid chain config")
	ErrChainInUse    = errors.New("cannot remove the current chain")
)

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainConfig follows the wallet_addEthereumChain (EIP-3085) shape.
type ChainConfig struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	IconURLs          []string       `json:"iconUrls,omitempty"`
}

const (
	MainnetChainID = "0x1"
	SepoliaChainID = "0xaa36a7"
	PolygonChainID = "0x89"
)

func DefaultChains() []ChainConfig {
	return []ChainConfig{
		{
			ChainID:           MainnetChainID,
			ChainName:         "Ethereum Mainnet",
			RPCURLs:           []string{"https://ethereum-rpc.publicnode.com"},
			BlockExplorerURLs: []string{"https://etherscan.io"},
			NativeCurrency:    NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		},
		{
			ChainID:           SepoliaChainID,
			ChainName:         "Sepolia Testnet",
			RPCURLs:           []string{"https://ethereum-sepolia-rpc.publicnode.com"},
			BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
			NativeCurrency:    NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
		},
		{
			ChainID:           PolygonChainID,
			ChainName:         "Polygon Mainnet",
			RPCURLs:           []string{"https://polygon-rpc.com"},
			BlockExplorerURLs: []string{"https://polygonscan.com"},
			NativeCurrency:    NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18},
		},
	}
}

// NormalizeChainID returns the canonical lowercase 0x form of v. It accepts
// hex or decimal strings and JSON numbers.
func NormalizeChainID(v any) (string, error) {
	n, err := parseChainID(v)
	if err != nil {
		return "", err
	}
	if n.Sign() <= 0 {
		return "", fmt.Errorf("%w: chain id must be positive", ErrInvalidChain)
	}
	return "0x" + n.Text(16), nil
}

// ChainIDBig parses a chain id in any accepted form.
func ChainIDBig(v any) (*big.Int, error) {
	hex, err := NormalizeChainID(v)
	if err != nil {
		return nil, err
	}
	n, _ := new(big.Int).SetString(hex[2:], 16)
	return n, nil
}

func parseChainID(v any) (*big.Int, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, fmt.Errorf("%w: empty chain id", ErrInvalidChain)
		}
		base := 10
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s, base = s[2:], 16
		}
		n, ok := new(big.Int).SetString(s, base)
		if !ok {
			return nil, fmt.Errorf("%w: chain id %q", ErrInvalidChain, x)
		}
		return n, nil
	case json.Number:
		return parseChainID(string(x))
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: chain id %v", ErrInvalidChain, x)
		}
		return big.NewInt(int64(x)), nil
	case int:
		return big.NewInt(int64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("%w: nil chain id", ErrInvalidChain)
		}
		return new(big.Int).Set(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported chain id type %T", ErrInvalidChain, v)
	}
}

// Normalize validates c and returns a cleaned copy.
func (c ChainConfig) Normalize() (ChainConfig, error) {
	id, err := NormalizeChainID(c.ChainID)
	if err != nil {
		return ChainConfig{}, err
	}
	c.ChainID = id
	c.ChainName = strings.TrimSpace(c.ChainName)
	if c.ChainName == "" {
		return ChainConfig{}, fmt.Errorf("%w: chainName is required", ErrInvalidChain)
	}

	c.RPCURLs = cleanURLs(c.RPCURLs)
	if len(c.RPCURLs) == 0 {
		return ChainConfig{}, fmt.Errorf("%w: at least one rpc url is required", ErrInvalidChain)
	}
	for _, u := range c.RPCURLs {
		if !validURL(u, "http", "https", "ws", "wss") {
			return ChainConfig{}, fmt.Errorf("%w: bad rpc url %q", ErrInvalidChain, u)
		}
	}
	c.BlockExplorerURLs = cleanURLs(c.BlockExplorerURLs)
	c.IconURLs = cleanURLs(c.IconURLs)

	c.NativeCurrency.Name = strings.TrimSpace(c.NativeCurrency.Name)
	c.NativeCurrency.Symbol = strings.TrimSpace(c.NativeCurrency.Symbol)
	if c.NativeCurrency.Symbol == "" {
		c.NativeCurrency.Symbol = "ETH"
	}
	if c.NativeCurrency.Name == "" {
		c.NativeCurrency.Name = c.NativeCurrency.Symbol
	}
	if c.NativeCurrency.Decimals == 0 {
		c.NativeCurrency.Decimals = 18
	}
	return c, nil
}

func cleanURLs(in []string) []string {
	var out []string
	for _, u := range in {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func validURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return true
		}
	}
	return false
}
