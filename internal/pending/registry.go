// Package pending holds requests that wait for a user decision.
package pending

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrExpired   = errors.New("request expired")
	ErrCancelled = errors.New("request cancelled")
	ErrClosed    = errors.New("registry closed")
)

// ID identifies one pending request.
type ID string

func NewID() ID { return ID(uuid.NewString()) }

func (id ID) String() string { return string(id) }

type Kind int

const (
	KindConnection Kind = iota + 1
	KindSignature
	KindTransaction
	KindChain
	KindImport
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindSignature:
		return "signature"
	case KindTransaction:
		return "transaction"
	case KindChain:
		return "chain"
	case KindImport:
		return "import"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

type State int

const (
	StateCreated State = iota
	StateApproved
	StateRejected
	StateExpired
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateApproved:
		return "approved"
	case StateRejected:
		return "rejected"
	case StateExpired:
		return "expired"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is a snapshot of a slot.
type Request struct {
	ID        ID        `json:"id"`
	Kind      Kind      `json:"kind"`
	Origin    string    `json:"origin"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Deadline  time.Time `json:"deadline"`
}

type slot struct {
	req    Request
	state  State
	reason string
	done   chan struct{}
	timer  *time.Timer
}

// Registry is the arena of pending requests. Each slot settles exactly once.
type Registry struct {
	mu     sync.Mutex
	slots  map[ID]*slot
	closed bool
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		slots: make(map[ID]*slot),
		now:   time.Now,
	}
}

// Handle is the waiting side of a registered request.
type Handle struct {
	id  ID
	reg *Registry
	s   *slot
}

func (h *Handle) ID() ID { return h.id }

// Register creates a slot that expires after ttl. A zero ttl never expires.
func (r *Registry) Register(kind Kind, origin string, payload any, ttl time.Duration) (ID, *Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", nil, ErrClosed
	}

	now := r.now()
	id := NewID()
	s := &slot{
		req: Request{
			ID:        id,
			Kind:      kind,
			Origin:    origin,
			Payload:   payload,
			CreatedAt: now,
		},
		done: make(chan struct{}),
	}
	if ttl > 0 {
		s.req.Deadline = now.Add(ttl)
		s.timer = time.AfterFunc(ttl, func() { r.settle(id, StateExpired, "") })
	}
	r.slots[id] = s

	return id, &Handle{id: id, reg: r, s: s}, nil
}

// Wait blocks until the slot settles. A done ctx cancels the slot.
func (h *Handle) Wait(ctx context.Context) (bool, error) {
	select {
	case <-h.s.done:
	case <-ctx.Done():
		h.reg.settle(h.id, StateCancelled, ctx.Err().Error())
		<-h.s.done
	}

	// state is immutable once done is closed
	switch h.s.state {
	case StateApproved:
		return true, nil
	case StateRejected:
		return false, nil
	case StateExpired:
		return false, ErrExpired
	default:
		if h.s.reason != "" {
			return false, &CancelError{Reason: h.s.reason}
		}
		return false, ErrCancelled
	}
}

// CancelError carries the reason a slot was cancelled.
type CancelError struct {
	Reason string
}

func (e *CancelError) Error() string { return ErrCancelled.Error() + ": " + e.Reason }

func (e *CancelError) Unwrap() error { return ErrCancelled }

// Resolve settles id as approved or rejected. Unknown or already settled
// ids return false.
func (r *Registry) Resolve(id ID, approved bool) bool {
	state := StateRejected
	if approved {
		state = StateApproved
	}
	return r.settle(id, state, "")
}

// Cancel settles id as cancelled.
func (r *Registry) Cancel(id ID, reason string) bool {
	return r.settle(id, StateCancelled, reason)
}

func (r *Registry) Get(id ID) (Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return Request{}, false
	}
	return s.req, true
}

// List returns open requests, oldest first.
func (r *Registry) List() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Close cancels every open slot and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]ID, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.settle(id, StateCancelled, "shutdown")
	}
}

func (r *Registry) settle(id ID, state State, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return false
	}
	delete(r.slots, id)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = state
	s.reason = reason
	close(s.done)
	return true
}
