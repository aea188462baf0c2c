package chat

import (
	"time"

	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/presence"
	"github.com/avelar/chatd/internal/store"
)

// Receipts updates read state on messages and notifies original senders
// when they are reachable.
type Receipts struct {
	db     *store.DB
	reg    *presence.Registry
	access *Access
	logger *zap.Logger
}

// NewReceipts creates the read-receipt aggregator.
func NewReceipts(db *store.DB, reg *presence.Registry, access *Access, logger *zap.Logger) *Receipts {
	return &Receipts{db: db, reg: reg, access: access, logger: logger}
}

// MarkRead records that userID has read the message. Idempotent: a second
// call for an already-read message is a no-op, not an error. The sender is
// notified only on the first read.
func (r *Receipts) MarkRead(userID, messageID string) error {
	m, err := r.db.GetMessage(messageID)
	if err != nil {
		return Internalf(err, "load message")
	}
	if m == nil {
		return NotFoundf("message %s not found", messageID)
	}
	if err := r.access.Check(userID, ChatRef{Kind: m.ChatKind, ID: m.ChatID}); err != nil {
		return err
	}
	if m.SenderID == userID {
		// The sender's own mark is seeded at save time.
		return nil
	}

	now := time.Now().UnixMilli()
	inserted, err := r.db.MarkMessageRead(messageID, userID, now)
	if err != nil {
		return Internalf(err, "persist read mark")
	}
	if !inserted {
		return nil
	}

	if conn, ok := r.reg.Lookup(m.SenderID); ok {
		conn.Send(EvtMessageRead, ReadPayload{
			MessageID: messageID,
			ChatID:    m.ChatID,
			ChatType:  m.ChatKind,
			ReaderID:  userID,
			ReadAt:    now,
		})
	}
	return nil
}

// MarkAllRead marks every message in the chat not sent by userID and not
// yet read by them, then emits one aggregated event per distinct original
// sender who is present.
func (r *Receipts) MarkAllRead(userID string, ref ChatRef) error {
	if err := r.access.Check(userID, ref); err != nil {
		return err
	}

	msgs, err := r.db.UnreadMessages(ref.ID, ref.Kind, userID)
	if err != nil {
		return Internalf(err, "load unread messages")
	}

	now := time.Now().UnixMilli()
	perSender := make(map[string]int)
	for _, m := range msgs {
		inserted, err := r.db.MarkMessageRead(m.ID, userID, now)
		if err != nil {
			// Isolated per message; keep marking the rest.
			r.logger.Error("failed to persist read mark",
				zap.String("message_id", m.ID), zap.Error(err))
			continue
		}
		if inserted {
			perSender[m.SenderID]++
		}
	}

	for senderID, count := range perSender {
		if conn, ok := r.reg.Lookup(senderID); ok {
			conn.Send(EvtMessagesReadAll, ReadAllPayload{
				ChatID:   ref.ID,
				ChatType: ref.Kind,
				ReaderID: userID,
				Count:    count,
			})
		}
	}
	return nil
}
