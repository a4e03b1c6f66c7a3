// Package permissions records which origins may see which accounts.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/wallet-bridge/internal/constants"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
)

var ErrInvalidOrigin = errors.New("invalid origin")

// Record is the grant for one origin.
type Record struct {
	Origin    string           `json:"origin"`
	Accounts  []common.Address `json:"accounts"`
	GrantedAt time.Time        `json:"grantedAt"`
}

// On-store representation
type ledgerFile struct {
	Schema  int               `json:"schema"`
	Records map[string]Record `json:"records"`
}

// Ledger is the authoritative origin allowlist.
type Ledger struct {
	mu      sync.RWMutex
	store   kvstore.KeyValueStore
	records map[string]Record
	now     func() time.Time
}

// New loads the ledger. A missing entry is an empty ledger.
func New(ctx context.Context, store kvstore.KeyValueStore) (*Ledger, error) {
	l := &Ledger{
		store:   store,
		records: make(map[string]Record),
		now:     time.Now,
	}

	f, found, err := kvstore.GetJSON[ledgerFile](ctx, store, constants.KeyPermissionsLedger)
	if err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	if found {
		for k, r := range f.Records {
			origin := NormalizeOrigin(k)
			if origin == "" {
				continue
			}
			r.Origin = origin
			l.records[origin] = r
		}
	}
	return l, nil
}

// Check reports whether origin was granted account.
func (l *Ledger) Check(origin string, account common.Address) bool {
	origin = NormalizeOrigin(origin)

	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.records[origin]
	if !ok {
		return false
	}
	for _, a := range r.Accounts {
		if a == account {
			return true
		}
	}
	return false
}

// Connected reports whether origin holds any grant.
func (l *Ledger) Connected(origin string) bool {
	origin = NormalizeOrigin(origin)

	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.records[origin]
	return ok && len(r.Accounts) > 0
}

// Grant replaces the record for origin and persists it.
func (l *Ledger) Grant(ctx context.Context, origin string, accounts []common.Address) (Record, error) {
	norm := NormalizeOrigin(origin)
	if norm == "" {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}

	seen := make(map[common.Address]bool, len(accounts))
	set := make([]common.Address, 0, len(accounts))
	for _, a := range accounts {
		if seen[a] {
			continue
		}
		seen[a] = true
		set = append(set, a)
	}

	r := Record{Origin: norm, Accounts: set, GrantedAt: l.now().UTC()}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, had := l.records[norm]
	l.records[norm] = r
	if err := l.persistLocked(ctx); err != nil {
		if had {
			l.records[norm] = prev
		} else {
			delete(l.records, norm)
		}
		return Record{}, err
	}
	return r, nil
}

// Accounts returns the accounts granted to origin.
func (l *Ledger) Accounts(origin string) []common.Address {
	origin = NormalizeOrigin(origin)

	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.records[origin]
	if !ok {
		return nil
	}
	return append([]common.Address(nil), r.Accounts...)
}

// Revoke removes the grant. It reports whether one existed.
func (l *Ledger) Revoke(ctx context.Context, origin string) (bool, error) {
	origin = NormalizeOrigin(origin)

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.records[origin]
	if !ok {
		return false, nil
	}
	delete(l.records, origin)
	if err := l.persistLocked(ctx); err != nil {
		l.records[origin] = prev
		return false, err
	}
	return true, nil
}

// List returns a copy sorted by origin.
func (l *Ledger) List() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		r.Accounts = append([]common.Address(nil), r.Accounts...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

func (l *Ledger) persistLocked(ctx context.Context) error {
	f := ledgerFile{Schema: constants.SchemaV1, Records: l.records}
	if err := kvstore.PutJSON(ctx, l.store, constants.KeyPermissionsLedger, f); err != nil {
		return fmt.Errorf("persist permissions: %w", err)
	}
	return nil
}

// NormalizeOrigin returns lowercase scheme://host[:port], or "" when in is
// not an origin. Default http and https ports are dropped.
func NormalizeOrigin(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	u, err := url.Parse(in)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch port := u.Port(); {
	case scheme == "http" && port == "80", scheme == "https" && port == "443":
		host = strings.TrimSuffix(host, ":"+port)
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}
