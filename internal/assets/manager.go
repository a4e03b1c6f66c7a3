// Package assets keeps the watched token list and reads ERC20 state.
package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/constants"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
)

var ErrInvalidToken = errors.New("invalid token")

const maxSymbolLen = 11

// Manager is the watch list, persisted as one KeyValueStore entry.
type Manager struct {
	mu    sync.Mutex
	store kvstore.KeyValueStore
}

func NewManager(store kvstore.KeyValueStore) *Manager {
	return &Manager{store: store}
}

// Watch adds t. A token already watched is returned unchanged with added false.
func (m *Manager) Watch(ctx context.Context, t Token) (Token, bool, error) {
	t, err := normalizeToken(t)
	if err != nil {
		return Token{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return Token{}, false, err
	}
	for _, existing := range s.Tokens {
		if existing.key() == t.key() {
			return existing, false, nil
		}
	}

	s.Tokens = append(s.Tokens, t)
	if err := m.persist(ctx, s); err != nil {
		return Token{}, false, err
	}
	return t, true, nil
}

// List returns the tokens for chainID, or all tokens when chainID is empty.
func (m *Manager) List(ctx context.Context, chainID string) ([]Token, error) {
	var want string
	if chainID != "" {
		id, err := chains.NormalizeChainID(chainID)
		if err != nil {
			return nil, err
		}
		want = id
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Token, 0, len(s.Tokens))
	for _, t := range s.Tokens {
		if want == "" || t.ChainID == want {
			out = append(out, t)
		}
	}
	return out, nil
}

// Remove reports whether the token was watched.
func (m *Manager) Remove(ctx context.Context, chainID, address, tokenID string) (bool, error) {
	id, err := chains.NormalizeChainID(chainID)
	if err != nil {
		return false, err
	}
	target := Token{ChainID: id, Address: common.HexToAddress(address).Hex(), TokenID: strings.TrimSpace(tokenID)}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(ctx)
	if err != nil {
		return false, err
	}
	kept := s.Tokens[:0]
	removed := false
	for _, t := range s.Tokens {
		if t.key() == target.key() {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	if !removed {
		return false, nil
	}
	s.Tokens = kept
	return true, m.persist(ctx, s)
}

func (m *Manager) load(ctx context.Context) (storeFile, error) {
	s, _, err := kvstore.GetJSON[storeFile](ctx, m.store, constants.KeyWatchedTokens)
	if err != nil {
		return storeFile{}, fmt.Errorf("load watched tokens: %w", err)
	}
	return s, nil
}

func (m *Manager) persist(ctx context.Context, s storeFile) error {
	s.Schema = constants.SchemaV1
	if err := kvstore.PutJSON(ctx, m.store, constants.KeyWatchedTokens, s); err != nil {
		return fmt.Errorf("persist watched tokens: %w", err)
	}
	return nil
}

func normalizeToken(t Token) (Token, error) {
	id, err := chains.NormalizeChainID(t.ChainID)
	if err != nil {
		return Token{}, err
	}
	t.ChainID = id

	addr := strings.TrimSpace(t.Address)
	if !common.IsHexAddress(addr) {
		return Token{}, fmt.Errorf("%w: address %q", ErrInvalidToken, t.Address)
	}
	t.Address = common.HexToAddress(addr).Hex()

	if t.Type == "" {
		t.Type = TypeERC20
	}
	switch t.Type {
	case TypeERC20, TypeERC721, TypeERC1155:
	default:
		return Token{}, fmt.Errorf("%w: type %q", ErrInvalidToken, t.Type)
	}

	t.Symbol = strings.TrimSpace(t.Symbol)
	if t.Symbol == "" || len(t.Symbol) > maxSymbolLen {
		return Token{}, fmt.Errorf("%w: symbol %q", ErrInvalidToken, t.Symbol)
	}
	if t.Decimals > 36 {
		return Token{}, fmt.Errorf("%w: decimals %d", ErrInvalidToken, t.Decimals)
	}
	t.Name = strings.TrimSpace(t.Name)
	t.Image = strings.TrimSpace(t.Image)
	t.TokenID = strings.TrimSpace(t.TokenID)
	return t, nil
}
