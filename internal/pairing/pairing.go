// Package pairing issues one-shot pairing codes that a browser extension
// exchanges for a long-lived token.
package pairing

import (
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 60 * time.Second

var (
	ErrExpired     = errors.New("pair expired")
	ErrInvalidCode = errors.New("invalid code")
)

func GeneratePairCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0 O I 1
	const length = 8

	b := make([]byte, length)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}

	for i := range b {
		b[i] = alphabet[int(b[i])%len(alphabet)]
	}

	return string(b), nil
}

func HashCode(code string) []byte {
	h := sha256.Sum256([]byte(code))
	return h[:]
}

// Offer is a freshly issued code. Code is shown once and never stored.
type Offer struct {
	PairID    string
	Code      string
	ExpiresAt time.Time
}

type entry struct {
	codeHash  []byte
	expiresAt time.Time
}

// Table holds open offers and the tokens they were exchanged for.
type Table struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	offers map[string]entry
	tokens [][]byte // sha256 of issued tokens
}

func NewTable(ttl time.Duration) *Table {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Table{ttl: ttl, now: time.Now, offers: make(map[string]entry)}
}

func (t *Table) Issue() (Offer, error) {
	code, err := GeneratePairCode()
	if err != nil {
		return Offer{}, err
	}
	o := Offer{PairID: uuid.NewString(), Code: code, ExpiresAt: t.now().Add(t.ttl)}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked()
	t.offers[o.PairID] = entry{codeHash: HashCode(code), expiresAt: o.ExpiresAt}
	return o, nil
}

// Exchange trades a code for a new token. An offer is consumed by its first
// correct exchange.
func (t *Table) Exchange(pairID, code string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked()

	e, ok := t.offers[pairID]
	if !ok {
		return "", ErrExpired
	}
	if subtle.ConstantTimeCompare(e.codeHash, HashCode(code)) != 1 {
		return "", ErrInvalidCode
	}
	delete(t.offers, pairID)

	token, err := NewToken()
	if err != nil {
		return "", err
	}
	t.tokens = append(t.tokens, HashCode(token))
	return token, nil
}

// Valid reports whether token was issued by Exchange.
func (t *Table) Valid(token string) bool {
	if token == "" {
		return false
	}
	h := HashCode(token)

	t.mu.Lock()
	defer t.mu.Unlock()
	found := 0
	for _, want := range t.tokens {
		found |= subtle.ConstantTimeCompare(want, h)
	}
	return found == 1
}

func (t *Table) sweepLocked() {
	now := t.now()
	for id, e := range t.offers {
		if now.After(e.expiresAt) {
			delete(t.offers, id)
		}
	}
}

// NewToken returns 32 random bytes, base64url encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
