package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/backplane"
	"github.com/avelar/chatd/internal/presence"
	"github.com/avelar/chatd/internal/rooms"
	"github.com/avelar/chatd/internal/store"
)

// Broadcaster relays non-durable signals: typing state and presence
// transitions. Nothing here is persisted except the presence status itself.
type Broadcaster struct {
	db     *store.DB
	reg    *presence.Registry
	rooms  *rooms.Table
	plane  backplane.Publisher
	logger *zap.Logger
}

// NewBroadcaster creates the ephemeral event relay.
func NewBroadcaster(db *store.DB, reg *presence.Registry, tbl *rooms.Table, plane backplane.Publisher, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{db: db, reg: reg, rooms: tbl, plane: plane, logger: logger}
}

// Typing relays a typing signal. Direct: the other participant only, and
// only if present. Group: every room subscriber except the sender. An
// unknown chat id yields zero recipients and is not an error.
func (b *Broadcaster) Typing(senderID string, ref ChatRef, active bool) error {
	event := EvtTyping
	if !active {
		event = EvtStopTyping
	}
	payload := TypingPayload{ChatID: ref.ID, ChatType: ref.Kind, UserID: senderID}

	switch ref.Kind {
	case store.KindDirect:
		c, err := b.db.GetDirectChat(ref.ID)
		if err != nil {
			return Internalf(err, "load direct chat")
		}
		if c == nil {
			return nil
		}
		if !c.Has(senderID) {
			return Unauthorizedf("not a participant of chat %s", ref.ID)
		}
		if conn, ok := b.reg.Lookup(c.Peer(senderID)); ok {
			conn.Send(event, payload)
		}
	case store.KindGroup:
		g, err := b.db.GetGroup(ref.ID)
		if err != nil {
			return Internalf(err, "load group")
		}
		if g == nil {
			return nil
		}
		member, err := b.db.IsGroupMember(senderID, ref.ID)
		if err != nil {
			return Internalf(err, "check membership")
		}
		if !member {
			return Unauthorizedf("not a member of group %s", ref.ID)
		}
		var except presence.Conn
		if conn, ok := b.reg.Lookup(senderID); ok {
			except = conn
		}
		b.rooms.Broadcast(rooms.GroupChannel(ref.ID), except, event, payload)
	default:
		return Validationf("invalid chat type %q", ref.Kind)
	}
	return nil
}

// SetStatus validates and persists a presence status, then emits a
// presence-change event to each friend currently present. The transition
// is also announced on the backplane for other instances.
func (b *Broadcaster) SetStatus(userID, username, status string) error {
	switch status {
	case StatusOnline, StatusAway, StatusOffline:
	default:
		return Validationf("invalid status %q", status)
	}

	now := time.Now().UnixMilli()
	if err := b.db.SetPresence(userID, status, now); err != nil {
		return Internalf(err, "persist status")
	}

	friends, err := b.db.FriendsOf(userID)
	if err != nil {
		return Internalf(err, "resolve friends")
	}

	payload := StatusChangePayload{UserID: userID, Username: username, Status: status, LastSeen: now}
	for _, friend := range friends {
		if conn, ok := b.reg.Lookup(friend.ID); ok {
			conn.Send(EvtUserStatusChange, payload)
		}
	}

	if err := b.plane.PresenceChanged(context.Background(), userID, status); err != nil {
		b.logger.Warn("backplane publish failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}
