package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FindOrCreateDirectChat returns the direct chat between two users, creating
// it if absent. Concurrent first contact from both sides converges on one
// row: the UNIQUE participant pair makes the INSERT a no-op for the loser,
// which then reads back the winner's row.
func (db *DB) FindOrCreateDirectChat(a, b string) (*DirectChat, error) {
	if a == b {
		return nil, fmt.Errorf("direct chat requires two distinct users")
	}
	lo, hi := orderPair(a, b)

	_, err := db.Exec(`
		INSERT INTO direct_chats (id, user_lo, user_hi, last_activity, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (user_lo, user_hi) DO NOTHING`,
		uuid.New().String(), lo, hi, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	var c DirectChat
	err = db.QueryRow(`
		SELECT id, user_lo, user_hi, last_activity
		FROM direct_chats WHERE user_lo = ? AND user_hi = ?`, lo, hi).
		Scan(&c.ID, &c.UserLo, &c.UserHi, &c.LastActivity)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetDirectChat returns a direct chat by id, or nil if absent.
func (db *DB) GetDirectChat(id string) (*DirectChat, error) {
	var c DirectChat
	err := db.QueryRow(`
		SELECT id, user_lo, user_hi, last_activity
		FROM direct_chats WHERE id = ?`, id).
		Scan(&c.ID, &c.UserLo, &c.UserHi, &c.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Peer returns the other participant of the chat.
func (c *DirectChat) Peer(userID string) string {
	if c.UserLo == userID {
		return c.UserHi
	}
	return c.UserLo
}

// Has reports whether userID is one of the two participants.
func (c *DirectChat) Has(userID string) bool {
	return c.UserLo == userID || c.UserHi == userID
}

// TouchDirectChat updates a direct chat's last-activity marker.
func (db *DB) TouchDirectChat(id string, at int64) error {
	_, err := db.Exec(`UPDATE direct_chats SET last_activity = ? WHERE id = ?`, at, id)
	return err
}
