package assets

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type TokenType string

const (
	TypeERC20   TokenType = "ERC20"
	TypeERC721  TokenType = "ERC721"
	TypeERC1155 TokenType = "ERC1155"
)

// Token is a watched asset on one chain.
type Token struct {
	ChainID  string    `json:"chainId"`
	Address  string    `json:"address"` // checksummed
	Symbol   string    `json:"symbol"`
	Decimals uint8     `json:"decimals"`
	Image    string    `json:"image,omitempty"`
	Type     TokenType `json:"type"`
	Name     string    `json:"name,omitempty"`
	TokenID  string    `json:"tokenId,omitempty"`
}

type storeFile struct {
	Tokens []Token `json:"tokens"`
	Schema int     `json:"schema"` // bump if you change format
}

func (t Token) key() string {
	return t.ChainID + "/" + strings.ToLower(t.Address) + "/" + t.TokenID
}

// IsNative reports whether addr is the native-currency sentinel.
func IsNative(addr common.Address) bool {
	return addr == (common.Address{})
}
