package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/presence"
	"github.com/avelar/chatd/internal/store"
)

type sentEvent struct {
	event   string
	payload any
}

// stubConn records events delivered to it. full simulates a connection
// whose send buffer rejects writes.
type stubConn struct {
	mu     sync.Mutex
	events []sentEvent
	full   bool
}

func (c *stubConn) Send(event string, payload any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.events = append(c.events, sentEvent{event: event, payload: payload})
	return true
}

func (c *stubConn) Close() {}

func (c *stubConn) countOf(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (c *stubConn) last() (sentEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return sentEvent{}, false
	}
	return c.events[len(c.events)-1], true
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustUser(t *testing.T, db *store.DB, id string) {
	t.Helper()
	if err := db.CreateUser(&store.User{ID: id, Username: id}); err != nil {
		t.Fatal(err)
	}
}

func mustGroup(t *testing.T, db *store.DB, id, owner string, members ...string) {
	t.Helper()
	if err := db.CreateGroup(&store.Group{ID: id, Name: id, OwnerID: owner}); err != nil {
		t.Fatal(err)
	}
	for _, m := range members {
		if err := db.AddGroupMember(id, m); err != nil {
			t.Fatal(err)
		}
	}
}

func startEngine(t *testing.T, db *store.DB, reg *presence.Registry, previewLen int) *Engine {
	t.Helper()
	e := NewEngine(db, reg, NewAccess(db), zap.NewNop(), 4, previewLen)
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e
}

func notificationCount(t *testing.T, db *store.DB, recipientID string) int {
	t.Helper()
	count, err := db.UnreadNotificationCount(recipientID)
	if err != nil {
		t.Fatal(err)
	}
	return count
}
