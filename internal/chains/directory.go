package chains

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/wallet-bridge/internal/constants"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
)

// Directory is the persistent chain list plus the current chain.
type Directory struct {
	store kvstore.KeyValueStore
	dial  DialFunc

	mu      sync.RWMutex
	chains  []ChainConfig
	current string

	clientsMu sync.Mutex
	clients   map[string]ChainClient
}

type Option func(*Directory)

func WithDialer(d DialFunc) Option {
	return func(dir *Directory) { dir.dial = d }
}

// New loads the chain list from store. When nothing is stored, defaults are
// persisted and the current chain becomes defaultCurrent (or the first entry).
func New(ctx context.Context, store kvstore.KeyValueStore, defaults []ChainConfig, defaultCurrent string, opts ...Option) (*Directory, error) {
	d := &Directory{
		store:   store,
		dial:    dialEthclient,
		clients: make(map[string]ChainClient),
	}
	for _, opt := range opts {
		opt(d)
	}

	stored, found, err := kvstore.GetJSON[[]ChainConfig](ctx, store, constants.KeyChains)
	if err != nil {
		return nil, errors.Wrap(err, "load chains")
	}
	if !found {
		stored = defaults
	}

	for _, c := range stored {
		n, err := c.Normalize()
		if err != nil {
			log.Warn("skipping invalid chain", "chainId", c.ChainID, "error", err)
			continue
		}
		if _, ok := d.find(n.ChainID); ok {
			continue
		}
		d.chains = append(d.chains, n)
	}
	if len(d.chains) == 0 {
		return nil, errors.New("no chains configured")
	}
	if !found {
		if err := kvstore.PutJSON(ctx, store, constants.KeyChains, d.chains); err != nil {
			return nil, errors.Wrap(err, "persist default chains")
		}
	}

	cur, found, err := kvstore.GetJSON[string](ctx, store, constants.KeyCurrentChainID)
	if err != nil {
		return nil, errors.Wrap(err, "load current chain")
	}
	if !found {
		cur = defaultCurrent
	}
	if id, err := NormalizeChainID(cur); err == nil {
		if _, ok := d.find(id); ok {
			d.current = id
		}
	}
	if d.current == "" {
		d.current = d.chains[0].ChainID
	}
	return d, nil
}

func (d *Directory) List() []ChainConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ChainConfig, len(d.chains))
	copy(out, d.chains)
	return out
}

// Resolve accepts any chain id form NormalizeChainID does.
func (d *Directory) Resolve(chainID any) (ChainConfig, error) {
	id, err := NormalizeChainID(chainID)
	if err != nil {
		return ChainConfig{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.find(id)
	if !ok {
		return ChainConfig{}, errors.Wrapf(ErrChainNotFound, "%s", id)
	}
	return c, nil
}

func (d *Directory) Current() ChainConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, _ := d.find(d.current)
	return c
}

// Switch makes chainID current. changed is false when it already was.
func (d *Directory) Switch(ctx context.Context, chainID any) (cfg ChainConfig, changed bool, err error) {
	id, err := NormalizeChainID(chainID)
	if err != nil {
		return ChainConfig{}, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.find(id)
	if !ok {
		return ChainConfig{}, false, errors.Wrapf(ErrChainNotFound, "%s", id)
	}
	if d.current == id {
		return c, false, nil
	}
	if err := kvstore.PutJSON(ctx, d.store, constants.KeyCurrentChainID, id); err != nil {
		return ChainConfig{}, false, errors.Wrap(err, "persist current chain")
	}
	d.current = id
	log.Info("chain switched", "chainId", id, "name", c.ChainName)
	return c, true, nil
}

// Add stores cfg. An existing chain id is left untouched and added is false.
func (d *Directory) Add(ctx context.Context, cfg ChainConfig) (out ChainConfig, added bool, err error) {
	n, err := cfg.Normalize()
	if err != nil {
		return ChainConfig{}, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.find(n.ChainID); ok {
		return existing, false, nil
	}

	next := append(append([]ChainConfig(nil), d.chains...), n)
	if err := kvstore.PutJSON(ctx, d.store, constants.KeyChains, next); err != nil {
		return ChainConfig{}, false, errors.Wrap(err, "persist chains")
	}
	d.chains = next
	log.Info("chain added", "chainId", n.ChainID, "name", n.ChainName)
	return n, true, nil
}

// Remove is idempotent. The current chain cannot be removed.
func (d *Directory) Remove(ctx context.Context, chainID any) error {
	id, err := NormalizeChainID(chainID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.current == id {
		d.mu.Unlock()
		return ErrChainInUse
	}
	idx := -1
	for i, c := range d.chains {
		if c.ChainID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return nil
	}
	removed := d.chains[idx]
	next := append(append([]ChainConfig(nil), d.chains[:idx]...), d.chains[idx+1:]...)
	if err := kvstore.PutJSON(ctx, d.store, constants.KeyChains, next); err != nil {
		d.mu.Unlock()
		return errors.Wrap(err, "persist chains")
	}
	d.chains = next
	d.mu.Unlock()

	d.closeClients(removed.RPCURLs)
	return nil
}

// Client returns a cached client for the chain's first RPC URL, dialling on
// first use.
func (d *Directory) Client(ctx context.Context, chainID any) (ChainClient, error) {
	c, err := d.Resolve(chainID)
	if err != nil {
		return nil, err
	}
	url := c.RPCURLs[0]
	key := strings.ToLower(url)

	d.clientsMu.Lock()
	if existing := d.clients[key]; existing != nil {
		d.clientsMu.Unlock()
		return existing, nil
	}
	d.clientsMu.Unlock()

	// Dial outside the lock
	dialed, err := d.dial(ctx, url)
	if err != nil {
		return nil, err
	}

	want, _ := ChainIDBig(c.ChainID)
	verifyChainID(ctx, dialed, url, want)

	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	if existing := d.clients[key]; existing != nil {
		dialed.Close()
		return existing, nil
	}
	d.clients[key] = dialed
	return dialed, nil
}

// CurrentClient is Client for the current chain.
func (d *Directory) CurrentClient(ctx context.Context) (ChainClient, ChainConfig, error) {
	cur := d.Current()
	c, err := d.Client(ctx, cur.ChainID)
	return c, cur, err
}

// Close closes all cached clients.
func (d *Directory) Close() {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	for key, c := range d.clients {
		c.Close()
		delete(d.clients, key)
	}
}

func (d *Directory) closeClients(urls []string) {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	for _, u := range urls {
		key := strings.ToLower(u)
		if c := d.clients[key]; c != nil {
			c.Close()
			delete(d.clients, key)
		}
	}
}

// find expects d.mu held.
func (d *Directory) find(id string) (ChainConfig, bool) {
	for _, c := range d.chains {
		if c.ChainID == id {
			return c, true
		}
	}
	return ChainConfig{}, false
}
