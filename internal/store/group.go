package store

import (
	"database/sql"
	"time"
)

// CreateGroup inserts a new group and subscribes the owner as a member.
func (db *DB) CreateGroup(g *Group) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO chat_groups (id, name, owner_id, last_activity, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		g.ID, g.Name, g.OwnerID, now); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO group_members (group_id, user_id, joined_at)
		VALUES (?, ?, ?)`,
		g.ID, g.OwnerID, now); err != nil {
		return err
	}
	return tx.Commit()
}

// GetGroup returns a group by id, or nil if absent.
func (db *DB) GetGroup(id string) (*Group, error) {
	var g Group
	err := db.QueryRow(`
		SELECT id, name, owner_id, last_activity FROM chat_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.OwnerID, &g.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// AddGroupMember subscribes a user to a group. Idempotent.
func (db *DB) AddGroupMember(groupID, userID string) error {
	_, err := db.Exec(`
		INSERT INTO group_members (group_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, time.Now().UnixMilli())
	return err
}

// GroupsOf returns every group the user is a member of.
func (db *DB) GroupsOf(userID string) ([]Group, error) {
	rows, err := db.Query(`
		SELECT g.id, g.name, g.owner_id, g.last_activity
		FROM group_members m
		JOIN chat_groups g ON g.id = m.group_id
		WHERE m.user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.LastActivity); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// IsGroupMember reports whether the user is currently a member of the group.
func (db *DB) IsGroupMember(userID, groupID string) (bool, error) {
	var one int
	err := db.QueryRow(`
		SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GroupMemberIDs returns the ids of every member of the group.
func (db *DB) GroupMemberIDs(groupID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT user_id FROM group_members WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchGroup updates a group's last-activity marker.
func (db *DB) TouchGroup(id string, at int64) error {
	_, err := db.Exec(`UPDATE chat_groups SET last_activity = ? WHERE id = ?`, at, id)
	return err
}
