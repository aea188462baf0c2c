package store

// SaveNotification persists a durable notification for an offline recipient.
func (db *DB) SaveNotification(n *Notification) error {
	read := 0
	if n.Read {
		read = 1
	}
	_, err := db.Exec(`
		INSERT INTO notifications (id, recipient_id, sender_id, kind, body, chat_id, chat_kind, message_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.SenderID, n.Kind, n.Body, n.ChatID, n.ChatKind, n.MessageID, read, n.CreatedAt)
	return err
}

// UnreadNotificationCount returns the number of unread notifications for a user.
func (db *DB) UnreadNotificationCount(recipientID string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read = 0`,
		recipientID).Scan(&count)
	return count, err
}

// MarkNotificationRead marks a notification read, scoped to its recipient so
// one user cannot clear another's notifications. Returns false if no row
// matched.
func (db *DB) MarkNotificationRead(id, recipientID string) (bool, error) {
	res, err := db.Exec(`
		UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?`,
		id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
