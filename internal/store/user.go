package store

import (
	"database/sql"
	"time"
)

// CreateUser inserts a new user row.
func (db *DB) CreateUser(u *User) error {
	_, err := db.Exec(`
		INSERT INTO users (id, username, status, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, orDefault(u.Status, "offline"), u.LastSeen, time.Now().UnixMilli())
	return err
}

// GetUser returns a user by id, or nil if absent.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, username, status, last_seen FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Status, &u.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetPresence persists a user's presence status and last-seen timestamp.
func (db *DB) SetPresence(userID, status string, lastSeen int64) error {
	_, err := db.Exec(`
		UPDATE users SET status = ?, last_seen = ? WHERE id = ?`,
		status, lastSeen, userID)
	return err
}

// AddFriendship records an accepted friendship edge between two users.
func (db *DB) AddFriendship(a, b string) error {
	lo, hi := orderPair(a, b)
	_, err := db.Exec(`
		INSERT INTO friendships (user_lo, user_hi, status, created_at)
		VALUES (?, ?, 'accepted', ?)
		ON CONFLICT (user_lo, user_hi) DO UPDATE SET status = 'accepted'`,
		lo, hi, time.Now().UnixMilli())
	return err
}

// FriendsOf returns every user with an accepted friendship edge with userID.
// Always read fresh: presence broadcast scope must not go stale.
func (db *DB) FriendsOf(userID string) ([]User, error) {
	rows, err := db.Query(`
		SELECT u.id, u.username, u.status, u.last_seen
		FROM friendships f
		JOIN users u ON u.id = CASE WHEN f.user_lo = ? THEN f.user_hi ELSE f.user_lo END
		WHERE (f.user_lo = ? OR f.user_hi = ?) AND f.status = 'accepted'`,
		userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var friends []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Status, &u.LastSeen); err != nil {
			return nil, err
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
