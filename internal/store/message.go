package store

import (
	"database/sql"
)

// SaveMessage persists a message together with the sender's own read mark,
// in one transaction. A sender has by definition seen their own message.
func (db *DB) SaveMessage(m *Message) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, chat_id, chat_kind, sender_id, kind, body, media_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.ChatKind, m.SenderID, orDefault(m.Kind, "text"), m.Body, m.MediaURL, m.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES (?, ?, ?)`,
		m.ID, m.SenderID, m.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetMessage returns a message by id, or nil if absent.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT id, chat_id, chat_kind, sender_id, kind, body, media_url, created_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ChatID, &m.ChatKind, &m.SenderID, &m.Kind, &m.Body, &m.MediaURL, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkMessageRead appends a read mark for the user. Returns false when the
// mark already existed, so a second read of the same message is a no-op.
func (db *DB) MarkMessageRead(messageID, userID string, at int64) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES (?, ?, ?)
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReadersOf returns the read marks recorded for a message.
func (db *DB) ReadersOf(messageID string) ([]ReadMark, error) {
	rows, err := db.Query(`
		SELECT message_id, user_id, read_at
		FROM message_reads WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var marks []ReadMark
	for rows.Next() {
		var r ReadMark
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.ReadAt); err != nil {
			return nil, err
		}
		marks = append(marks, r)
	}
	return marks, rows.Err()
}

// UnreadMessages returns messages in a chat not sent by userID and not yet
// read by them, oldest first.
func (db *DB) UnreadMessages(chatID, chatKind, userID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT m.id, m.chat_id, m.chat_kind, m.sender_id, m.kind, m.body, m.media_url, m.created_at
		FROM messages m
		WHERE m.chat_id = ? AND m.chat_kind = ? AND m.sender_id != ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r
			WHERE r.message_id = m.id AND r.user_id = ?
		  )
		ORDER BY m.created_at ASC`,
		chatID, chatKind, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.ChatKind, &m.SenderID, &m.Kind, &m.Body, &m.MediaURL, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
