package vault

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// Session is the capability returned by Unlock. It is required by every
// vault operation that reads or writes sealed data.
type Session string

type sessionEntry struct {
	password []byte
	lastUsed time.Time
}

// sessionTable maps tokens to the password they were unlocked with.
// Entries idle for longer than ttl are dropped on access.
type sessionTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[Session]*sessionEntry
}

func newSessionTable(ttl time.Duration, now func() time.Time) *sessionTable {
	return &sessionTable{
		ttl:     ttl,
		now:     now,
		entries: make(map[Session]*sessionEntry),
	}
}

func (t *sessionTable) issue(password []byte) (Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand session: %w", err)
	}
	s := Session(base64.RawURLEncoding.EncodeToString(b))

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[s] = &sessionEntry{
		password: append([]byte(nil), password...),
		lastUsed: t.now(),
	}
	return s, nil
}

// password returns a copy of the session password and refreshes its idle timer.
func (t *sessionTable) password(s Session) ([]byte, error) {
	if s == "" {
		return nil, ErrLocked
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[s]
	if !ok {
		return nil, ErrLocked
	}
	now := t.now()
	if t.ttl > 0 && now.Sub(e.lastUsed) > t.ttl {
		zeroBytes(e.password)
		delete(t.entries, s)
		return nil, ErrLocked
	}
	e.lastUsed = now
	return append([]byte(nil), e.password...), nil
}

func (t *sessionTable) valid(s Session) bool {
	pw, err := t.password(s)
	if err != nil {
		return false
	}
	zeroBytes(pw)
	return true
}

func (t *sessionTable) revoke(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[s]; ok {
		zeroBytes(e.password)
		delete(t.entries, s)
	}
}

func (t *sessionTable) revokeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for s, e := range t.entries {
		zeroBytes(e.password)
		delete(t.entries, s)
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
