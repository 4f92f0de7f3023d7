// Package registry tracks which identities currently hold a live signaling
// connection.
//
// The Registry is the single source of truth for "who is online". It is safe
// for concurrent use; entries are spread over independently locked shards so
// connects and disconnects of unrelated identities do not serialize on one
// lock.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Conn is the send capability the transport hands to the core.
//
// Implementations must allow Send to be called from multiple goroutines.
type Conn interface {
	// ID is a per-connection token, distinct from the identity, used to tell
	// connections of the same identity apart in logs.
	ID() string
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Entry is one registered connection.
type Entry struct {
	Identity string
	Conn     Conn

	// Seq orders registrations; a larger value was registered later.
	Seq uint64
}

var ErrNotConnected = errors.New("identity not connected")

// DeliveryError reports that a message could not be handed to a target. It is
// never fatal for a fan-out; callers log it and move on.
type DeliveryError struct {
	Identity string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %q: %v", e.Identity, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Registry struct {
	entries cmap.ConcurrentMap[string, Entry]
	seq     atomic.Uint64
}

func New() *Registry {
	return &Registry{
		entries: cmap.New[Entry](),
	}
}

// Put registers conn for identity, unconditionally replacing any prior entry.
// The replaced entry is returned so the caller can decide whether to close it.
//
// Seq is taken under the shard lock, so an entry always carries a larger Seq
// than the one it replaced.
func (r *Registry) Put(identity string, conn Conn) (prev Entry, replaced bool) {
	r.entries.Upsert(identity, Entry{}, func(exist bool, old Entry, _ Entry) Entry {
		if exist {
			prev = old
			replaced = true
		}
		return Entry{
			Identity: identity,
			Conn:     conn,
			Seq:      r.seq.Add(1),
		}
	})
	return prev, replaced
}

// Remove deletes the entry for identity if present and returns it.
func (r *Registry) Remove(identity string) (Entry, bool) {
	return r.entries.Pop(identity)
}

// RemoveConn deletes the entry for identity only while it still refers to
// conn. A connection that was superseded therefore cannot evict its successor.
func (r *Registry) RemoveConn(identity string, conn Conn) bool {
	return r.entries.RemoveCb(identity, func(_ string, e Entry, exists bool) bool {
		return exists && e.Conn == conn
	})
}

// Get returns the connection currently registered for identity.
func (r *Registry) Get(identity string) (Conn, bool) {
	e, ok := r.entries.Get(identity)
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// Size is the number of registered identities.
func (r *Registry) Size() int {
	return r.entries.Count()
}

// Snapshot copies the current entries ordered by registration, oldest first.
func (r *Registry) Snapshot() []Entry {
	out := make([]Entry, 0, r.entries.Count())
	r.entries.IterCb(func(_ string, e Entry) {
		out = append(out, e)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ForEach calls fn for every entry of a snapshot taken on entry. Entries added
// or removed while fn runs may or may not be visited; a slot reused by a new
// registration is never visited twice. Returning false stops the iteration.
func (r *Registry) ForEach(fn func(identity string, conn Conn) bool) {
	for _, e := range r.Snapshot() {
		if !fn(e.Identity, e.Conn) {
			return
		}
	}
}

// Identities returns the registered identities in registration order.
func (r *Registry) Identities() []string {
	snap := r.Snapshot()
	out := make([]string, len(snap))
	for i, e := range snap {
		out[i] = e.Identity
	}
	return out
}

// Deliver sends data to the connection registered for identity. Absent
// identities and failed sends are both reported as *DeliveryError.
func (r *Registry) Deliver(ctx context.Context, identity string, data []byte) error {
	conn, ok := r.Get(identity)
	if !ok {
		return &DeliveryError{Identity: identity, Err: ErrNotConnected}
	}
	if err := conn.Send(ctx, data); err != nil {
		return &DeliveryError{Identity: identity, Err: err}
	}
	return nil
}
