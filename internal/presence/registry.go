// Package presence owns liveness truth: the process-wide mapping from user
// identity to their single active connection handle. It is the one piece of
// shared mutable state touched from arbitrarily many handlers, so every
// operation is safe for concurrent use without external locking.
package presence

import (
	"sync"
	"time"
)

// Conn is the connection handle stored in the registry. Implemented by the
// gateway client; kept as an interface so the registry can be swapped for a
// distributed backplane without touching call sites.
type Conn interface {
	// Send enqueues a server event without blocking. Returns false when the
	// connection's buffer is full or the connection is closed.
	Send(event string, payload any) bool
	// Close tears the connection down. Used when a newer connection for the
	// same user supersedes this one.
	Close()
}

type entry struct {
	conn     Conn
	joinedAt time.Time
}

// Registry maps user ids to live connection handles. At most one entry per
// user: a later connect supersedes an earlier one, it never merges.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register inserts or replaces the entry for userID and returns the prior
// handle when one existed. The registry never closes the prior handle
// itself; that is the connection lifecycle controller's job.
func (r *Registry) Register(userID string, c Conn) (prev Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[userID]; ok {
		prev = old.conn
	}
	r.entries[userID] = entry{conn: c, joinedAt: time.Now()}
	return prev
}

// Unregister removes the entry only if the stored handle is exactly c.
// A late disconnect of a superseded session must not clobber the newer one.
func (r *Registry) Unregister(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[userID]; ok && cur.conn == c {
		delete(r.entries, userID)
		return true
	}
	return false
}

// Lookup returns the live handle for userID, if any.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// ActiveAmong filters ids down to those with a live entry.
func (r *Registry) ActiveAmong(ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []string
	for _, id := range ids {
		if _, ok := r.entries[id]; ok {
			active = append(active, id)
		}
	}
	return active
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
