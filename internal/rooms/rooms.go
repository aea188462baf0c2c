// Package rooms keeps the per-channel subscription table used to target
// ephemeral events at group chats. Subscriptions are connection-scoped:
// the table holds no durable state and tolerates concurrent
// join/leave/broadcast.
package rooms

import (
	"fmt"
	"sync"

	"github.com/avelar/chatd/internal/presence"
)

// GroupChannel returns the channel name for a group chat.
func GroupChannel(groupID string) string {
	return fmt.Sprintf("group:%s", groupID)
}

// Table maps channel names to the set of subscribed connections.
type Table struct {
	mu       sync.RWMutex
	channels map[string]map[presence.Conn]struct{}
}

// NewTable creates an empty subscription table.
func NewTable() *Table {
	return &Table{channels: make(map[string]map[presence.Conn]struct{})}
}

// Join subscribes a connection to a channel. Idempotent.
func (t *Table) Join(channel string, c presence.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs, ok := t.channels[channel]
	if !ok {
		subs = make(map[presence.Conn]struct{})
		t.channels[channel] = subs
	}
	subs[c] = struct{}{}
}

// Leave unsubscribes a connection from a channel. Never fails: leaving a
// channel the connection was never in is a no-op.
func (t *Table) Leave(channel string, c presence.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if subs, ok := t.channels[channel]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(t.channels, channel)
		}
	}
}

// LeaveAll removes a connection from every channel. Called on disconnect.
func (t *Table) LeaveAll(c presence.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for channel, subs := range t.channels {
		delete(subs, c)
		if len(subs) == 0 {
			delete(t.channels, channel)
		}
	}
}

// Broadcast sends an event to every subscriber of the channel except the
// given connection. Sends are non-blocking; a subscriber with a full buffer
// simply misses the ephemeral event.
func (t *Table) Broadcast(channel string, except presence.Conn, event string, payload any) int {
	t.mu.RLock()
	subs := t.channels[channel]
	targets := make([]presence.Conn, 0, len(subs))
	for c := range subs {
		if c != except {
			targets = append(targets, c)
		}
	}
	t.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(event, payload) {
			delivered++
		}
	}
	return delivered
}

// Subscribers returns the number of connections in the channel.
func (t *Table) Subscribers(channel string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.channels[channel])
}
